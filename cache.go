package payroll

import (
	"context"
	"encoding/json"
	"time"

	"github.com/allegro/bigcache/v3"
)

const tokenMetaExpTime = 12 * time.Hour

// Cache holds token metadata (symbol, decimals) read from chain. Token
// metadata is immutable in practice, so a long expiry is fine. Registry
// resolutions are deliberately NOT cached here: every operation must see the
// registry's current state.
type Cache struct {
	tokenMeta *bigcache.BigCache
}

func NewCache() *Cache {
	c, err := bigcache.New(context.Background(), bigcache.DefaultConfig(tokenMetaExpTime))
	if err != nil {
		panic(err)
	}
	return &Cache{tokenMeta: c}
}

func (c *Cache) GetTokenMeta(token string) (TokenMeta, bool) {
	data, err := c.tokenMeta.Get(token)
	if err != nil {
		return TokenMeta{}, false
	}
	meta := TokenMeta{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return TokenMeta{}, false
	}
	return meta, true
}

func (c *Cache) SetTokenMeta(token string, meta TokenMeta) {
	data, err := json.Marshal(&meta)
	if err != nil {
		return
	}
	if err := c.tokenMeta.Set(token, data); err != nil {
		log.Warn("set token meta cache", "err", err, "token", token)
	}
}

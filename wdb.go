package payroll

import (
	"path"
	"time"

	"github.com/everFinance/payroll/schema"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const sqliteName = "payroll.sqlite"

type Wdb struct {
	Db *gorm.DB
}

func NewMysqlDb(dsn string) *Wdb {
	logLevel := logger.Error
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:          logger.Default.LogMode(logLevel),
		CreateBatchSize: 200,
	})
	if err != nil {
		panic(err)
	}
	log.Info("connect mysql db success")
	return &Wdb{Db: db}
}

func NewSqliteDb(dbDir string) *Wdb {
	db, err := gorm.Open(sqlite.Open(path.Join(dbDir, sqliteName)), &gorm.Config{
		Logger:          logger.Default.LogMode(logger.Error),
		CreateBatchSize: 200,
	})
	if err != nil {
		panic(err)
	}
	log.Info("connect sqlite db success")
	return &Wdb{Db: db}
}

func (w *Wdb) Migrate() error {
	return w.Db.AutoMigrate(
		&schema.Stream{}, &schema.Schedule{},
		&schema.LlamaPayBinding{}, &schema.StreamRecipient{},
		&schema.EventLog{},
	)
}

func (w *Wdb) Close() {
	sql, err := w.Db.DB()
	if err == nil {
		sql.Close()
	}
}

// SaveStream upserts the stream row for its username together with the
// recipient the external protocol was pointed at and, when the token was
// bound for the first time, the new binding. One transaction, committed only
// after the relay batch has already succeeded.
func (w *Wdb) SaveStream(s *schema.Stream, recipient string, bind *schema.LlamaPayBinding) error {
	return w.Db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			UpdateAll: true,
		}).Create(s).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"recipient", "updated_at"}),
		}).Create(&schema.StreamRecipient{
			Username:  s.Username,
			Recipient: recipient,
			UpdatedAt: time.Now(),
		}).Error; err != nil {
			return err
		}
		if bind != nil {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(bind).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (w *Wdb) GetStream(username string) (res schema.Stream, err error) {
	err = w.Db.Where("username = ?", username).First(&res).Error
	return
}

func (w *Wdb) UpdateStreamPayout(username string, lastPayout int64) error {
	return w.Db.Model(&schema.Stream{}).Where("username = ?", username).
		Update("last_payout", lastPayout).Error
}

// DeactivateStream flips the flag and clears the recipient ledger entry.
func (w *Wdb) DeactivateStream(username string, lastPayout int64) error {
	return w.Db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"active": false}
		if lastPayout > 0 {
			updates["last_payout"] = lastPayout
		}
		if err := tx.Model(&schema.Stream{}).Where("username = ?", username).
			Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("username = ?", username).
			Delete(&schema.StreamRecipient{}).Error
	})
}

func (w *Wdb) GetStreamRecipient(username string) (res schema.StreamRecipient, err error) {
	err = w.Db.Where("username = ?", username).First(&res).Error
	return
}

func (w *Wdb) UpdateStreamRecipient(username, recipient string) error {
	return w.Db.Model(&schema.StreamRecipient{}).Where("username = ?", username).
		Update("recipient", recipient).Error
}

func (w *Wdb) GetBinding(token string) (res schema.LlamaPayBinding, err error) {
	err = w.Db.Where("token = ?", token).First(&res).Error
	return
}

func (w *Wdb) GetBindings() ([]schema.LlamaPayBinding, error) {
	res := make([]schema.LlamaPayBinding, 0, 10)
	err := w.Db.Find(&res).Error
	return res, err
}

func (w *Wdb) SaveSchedule(s *schema.Schedule) error {
	return w.Db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		UpdateAll: true,
	}).Create(s).Error
}

func (w *Wdb) GetSchedule(username string) (res schema.Schedule, err error) {
	err = w.Db.Where("username = ?", username).First(&res).Error
	return
}

// AdvanceSchedule moves nextPayout forward one period, or deactivates a
// one-time schedule after its single payout.
func (w *Wdb) AdvanceSchedule(username string, nextPayout int64, active bool) error {
	return w.Db.Model(&schema.Schedule{}).Where("username = ?", username).
		Updates(map[string]interface{}{
			"next_payout": nextPayout,
			"active":      active,
		}).Error
}

func (w *Wdb) DeactivateSchedule(username string) error {
	return w.Db.Model(&schema.Schedule{}).Where("username = ?", username).
		Update("active", false).Error
}

func (w *Wdb) InsertEventLog(ev schema.EventLog) error {
	return w.Db.Create(&ev).Error
}

func (w *Wdb) CountActiveStreams() (int64, error) {
	var n int64
	err := w.Db.Model(&schema.Stream{}).Where("active = ?", true).Count(&n).Error
	return n, err
}

func (w *Wdb) CountActiveSchedules() (int64, error) {
	var n int64
	err := w.Db.Model(&schema.Schedule{}).Where("active = ?", true).Count(&n).Error
	return n, err
}

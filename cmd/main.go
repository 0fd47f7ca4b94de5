package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/everFinance/payroll"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name: "payroll",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mysql", Value: "root@tcp(127.0.0.1:3306)/payroll?charset=utf8mb4&parseTime=True&loc=Local", Usage: "mysql dsn", EnvVars: []string{"MYSQL"}},
			&cli.StringFlag{Name: "sqlite_dir", Value: "./data/sqlite", Usage: "sqlite db dir path", EnvVars: []string{"SQLITE_DIR"}},
			&cli.BoolFlag{Name: "use_sqlite", Value: false, Usage: "run with sqlite instead of mysql", EnvVars: []string{"USE_SQLITE"}},
			&cli.StringFlag{Name: "db_dir", Value: "./data/bolt", Usage: "bolt db dir path", EnvVars: []string{"DB_DIR"}},
			&cli.StringFlag{Name: "chain_rpc", Value: "https://rpc.ankr.com/eth", Usage: "chain rpc for view calls", EnvVars: []string{"CHAIN_RPC"}},
			&cli.StringFlag{Name: "registry", Value: "http://127.0.0.1:8090", Usage: "identity registry url", EnvVars: []string{"REGISTRY"}},
			&cli.StringFlag{Name: "relay", Value: "http://127.0.0.1:8091", Usage: "treasury execution relay url", EnvVars: []string{"RELAY"}},
			&cli.StringFlag{Name: "factory", Value: "0xde1C04855c2828431ba637675B6929A684f84C7F", Usage: "llamapay factory address", EnvVars: []string{"FACTORY"}},
			&cli.StringFlag{Name: "treasury", Value: "", Usage: "treasury address", EnvVars: []string{"TREASURY"}},
			&cli.StringFlag{Name: "kafka_uri", Value: "", Usage: "kafka broker uri, events disabled when empty", EnvVars: []string{"KAFKA_URI"}},

			&cli.StringFlag{Name: "port", Value: ":8080", EnvVars: []string{"PORT"}},
		},
		Action: run,
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	p := payroll.New(
		c.String("mysql"), c.String("sqlite_dir"), c.Bool("use_sqlite"), c.String("db_dir"),
		c.String("chain_rpc"), c.String("registry"), c.String("relay"),
		c.String("factory"), c.String("treasury"),
		c.String("kafka_uri"),
	)
	payroll.NewMetricServer()
	p.Run(c.String("port"))

	<-signals
	p.Close()

	return nil
}

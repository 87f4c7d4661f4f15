// Command diskdb-server runs the DiskDB line-protocol server: it reads its
// configuration from the environment (config.FromEnv), opens the embedded
// storage engine, and serves connections until killed.
package main

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/transybao1393/diskdb-go/bufpool"
	"github.com/transybao1393/diskdb-go/config"
	"github.com/transybao1393/diskdb-go/executor"
	"github.com/transybao1393/diskdb-go/server"
	"github.com/transybao1393/diskdb-go/storage"
	"github.com/transybao1393/diskdb-go/tlsconfig"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal(err)
	}

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		log.Fatal(err)
	}

	// Rotate the server log the way the teacher's storage/audit.go rotates
	// its audit log.
	logger := log.New(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, "diskdb-server.log"),
		MaxSize:    100, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}, "", log.LstdFlags)

	st, err := storage.New(cfg.Path)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	exec := executor.New(st)
	pool := bufpool.New()

	serverCfg := server.Config{
		Addr:           fmtAddr(cfg.Port),
		MaxConnections: cfg.MaxConnections,
		Logger:         logger,
	}
	if cfg.UseTLS {
		tlsCfg, err := tlsconfig.Load(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			log.Fatal(err)
		}
		serverCfg.TLSConfig = tlsCfg
	}

	srv, err := server.Listen(serverCfg, exec, pool)
	if err != nil {
		log.Fatal(err)
	}
	logger.Printf("listening on %s (tls=%v, max_connections=%d)", srv.Addr(), cfg.UseTLS, cfg.MaxConnections)
	log.Printf("diskdb-server listening on %s", srv.Addr())

	log.Fatal(srv.Serve())
}

func fmtAddr(port int) string {
	return ":" + strconv.Itoa(port)
}

package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bridgeit/bridgeit/internal/api"
	"github.com/bridgeit/bridgeit/internal/auth"
	"github.com/bridgeit/bridgeit/internal/config"
	"github.com/bridgeit/bridgeit/internal/db"
	"github.com/bridgeit/bridgeit/internal/deepaudit"
	"github.com/bridgeit/bridgeit/internal/engine"
	"github.com/bridgeit/bridgeit/internal/mcp"
	"github.com/bridgeit/bridgeit/pkg/audit"
	"github.com/bridgeit/bridgeit/pkg/metrics"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	case "create-staff":
		cmdCreateStaff(os.Args[2:])
	case "version":
		fmt.Printf("bridgeit %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`bridgeit — lead and build-sprint management backend

Usage:
  bridgeit serve [--config config.toml] [--addr :8090]
  bridgeit mcp [--config config.toml]
  bridgeit create-staff --handle NAME --role scout|fellow|admin [--config config.toml]
  bridgeit version
  bridgeit help

Commands:
  serve         Start the HTTP server
  mcp           Start the MCP stdio server (read-only tools)
  create-staff  Create a staff account (reads password from BRIDGEIT_PASSWORD)
  version       Print version
  help          Show this help`)
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	addr := fs.String("addr", "", "listen address (overrides config)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	auditLog, err := openAuditLog(cfg.Database.AuditPath)
	if err != nil {
		log.Fatalf("opening audit log: %v", err)
	}
	defer auditLog.Close()

	m := metrics.New("bridgeit")

	opts := []engine.Option{engine.WithMetrics(m)}
	if cfg.DeepAudit.Enabled {
		timeout := time.Duration(cfg.DeepAudit.TimeoutSec) * time.Second
		opts = append(opts, engine.WithDeepAudit(deepaudit.New(cfg.DeepAudit.BaseURL, timeout, database)))
	}
	eng := engine.New(database, auditLog, cfg.Sprint, opts...)

	a := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin)
	apiHandler := api.New(database, a, eng)
	apiHandler.SetMetrics(m)

	mux := http.NewServeMux()
	apiHandler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", m.Handler())

	limiter := api.NewRateLimiter(300, time.Minute)
	handler := api.SecurityHeaders(api.RateLimitMiddleware(limiter, mux))

	log.Printf("bridgeit %s listening on %s", version, cfg.Server.Addr)
	log.Printf("database: %s", cfg.Database.Path)
	log.Printf("scoring mode: %s", cfg.Sprint.ScoringMode)
	if cfg.DeepAudit.Enabled {
		log.Printf("deep audit: enabled (%s)", cfg.DeepAudit.BaseURL)
	} else {
		log.Printf("deep audit: disabled")
	}

	if err := http.ListenAndServe(cfg.Server.Addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func cmdMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	// The MCP server is read-only; mutations stay on the HTTP surface, so no
	// audit logger or deep-audit provider is wired here.
	eng := engine.New(database, audit.Nop{}, cfg.Sprint)

	srv := mcp.NewServer(eng)
	if err := mcpserver.ServeStdio(srv); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}

func cmdCreateStaff(args []string) {
	fs := flag.NewFlagSet("create-staff", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	handle := fs.String("handle", "", "staff handle (login name)")
	role := fs.String("role", db.RoleScout, "role: scout, fellow or admin")
	fs.Parse(args)

	if *handle == "" {
		log.Fatal("--handle is required")
	}
	if *role != db.RoleScout && *role != db.RoleFellow && *role != db.RoleAdmin {
		log.Fatalf("invalid role %q", *role)
	}
	password := os.Getenv("BRIDGEIT_PASSWORD")
	if len(password) < 12 {
		log.Fatal("BRIDGEIT_PASSWORD must be set and at least 12 characters")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	a := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin)
	hash, err := a.HashPassword(password)
	if err != nil {
		log.Fatalf("hashing password: %v", err)
	}

	user, err := database.CreateStaff(db.CreateStaffInput{
		Handle:       *handle,
		PasswordHash: hash,
		Role:         *role,
	})
	if err != nil {
		log.Fatalf("creating staff user: %v", err)
	}
	fmt.Printf("created %s %s (%s)\n", user.Role, user.Handle, user.ID)
}

// openAuditLog opens the audit trail in its own database file so audit writes
// never contend with engine writes.
func openAuditLog(path string) (*audit.SQLiteLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	logger := audit.NewSQLiteLogger(sqlDB)
	if err := logger.Init(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return logger, nil
}

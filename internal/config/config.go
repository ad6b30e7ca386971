// Package config reads server settings from flags, with defaults taken from
// the environment and an optional .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/erazemk/kataster/internal/workflow"
)

// Document store backends.
const (
	DocStoreMemory     = "memory"
	DocStoreCloudinary = "cloudinary"
	DocStoreS3         = "s3"
)

// Config holds the server settings.
type Config struct {
	DBPath    string
	Addr      string
	AdminUser string
	LogPath   string

	DocStore   string
	Cloudinary Cloudinary
	S3         S3

	Workflow workflow.Config
}

// Cloudinary holds Cloudinary credentials.
type Cloudinary struct {
	CloudName string
	APIKey    string
	APISecret string
}

// S3 holds the S3 bucket settings. Credentials come from the default AWS
// chain.
type S3 struct {
	Bucket    string
	Region    string
	PublicURL string
}

const usage = `Usage: kataster [flags]

Flags:
  -d, -db <path>              SQLite database path (env KATASTER_DB, default: kataster.sqlite3)
  -a, -addr <host:port>       listen address (env KATASTER_ADDR, default: :8080)
  -u, -user <name>            admin username on first run (env KATASTER_ADMIN_USER, default: Admin)
  -l, -log <path>             log file path (env KATASTER_LOG, default: stdout/stderr only)
  -s, -docstore <backend>     memory, cloudinary or s3 (env KATASTER_DOCSTORE, default: memory)
  -verification-initial <s>   pending or verified (env KATASTER_VERIFICATION_INITIAL, default: pending)
  -required-approvals <list>  comma-separated approval roles (env KATASTER_REQUIRED_APPROVALS,
                              default: seller,buyer,verifier)
  -h, -help                   show this help and exit

Cloudinary uses CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET.
S3 uses KATASTER_S3_BUCKET, KATASTER_S3_REGION and KATASTER_S3_PUBLIC_URL.
`

// Load reads .env (if present) into the environment and parses args.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return Parse(args, os.Getenv, os.Stdout)
}

// Parse parses args with defaults from getenv. Usage is written to out. A
// help request returns flag.ErrHelp.
func Parse(args []string, getenv func(string) string, out io.Writer) (*Config, error) {
	env := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Cloudinary: Cloudinary{
			CloudName: getenv("CLOUDINARY_CLOUD_NAME"),
			APIKey:    getenv("CLOUDINARY_API_KEY"),
			APISecret: getenv("CLOUDINARY_API_SECRET"),
		},
		S3: S3{
			Bucket:    getenv("KATASTER_S3_BUCKET"),
			Region:    env("KATASTER_S3_REGION", "us-east-1"),
			PublicURL: getenv("KATASTER_S3_PUBLIC_URL"),
		},
	}
	defaults := workflow.DefaultConfig()

	flags := flag.NewFlagSet("kataster", flag.ContinueOnError)
	flags.SetOutput(out)

	dbDefault := env("KATASTER_DB", "kataster.sqlite3")
	flags.StringVar(&cfg.DBPath, "db", dbDefault, "")
	flags.StringVar(&cfg.DBPath, "d", dbDefault, "")

	addrDefault := env("KATASTER_ADDR", ":8080")
	flags.StringVar(&cfg.Addr, "addr", addrDefault, "")
	flags.StringVar(&cfg.Addr, "a", addrDefault, "")

	userDefault := env("KATASTER_ADMIN_USER", "Admin")
	flags.StringVar(&cfg.AdminUser, "user", userDefault, "")
	flags.StringVar(&cfg.AdminUser, "u", userDefault, "")

	logDefault := getenv("KATASTER_LOG")
	flags.StringVar(&cfg.LogPath, "log", logDefault, "")
	flags.StringVar(&cfg.LogPath, "l", logDefault, "")

	storeDefault := env("KATASTER_DOCSTORE", DocStoreMemory)
	flags.StringVar(&cfg.DocStore, "docstore", storeDefault, "")
	flags.StringVar(&cfg.DocStore, "s", storeDefault, "")

	flags.StringVar(&cfg.Workflow.InitialVerificationStatus, "verification-initial",
		env("KATASTER_VERIFICATION_INITIAL", defaults.InitialVerificationStatus), "")

	var approvals string
	flags.StringVar(&approvals, "required-approvals",
		env("KATASTER_REQUIRED_APPROVALS", strings.Join(defaults.RequiredApprovals, ",")), "")

	flags.Usage = func() { fmt.Fprint(out, usage) }

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if flags.NArg() > 0 {
		flags.Usage()
		return nil, fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}

	cfg.Workflow.RequiredApprovals = splitList(approvals)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected document store is configured and the
// workflow policy is valid.
func (c *Config) Validate() error {
	switch c.DocStore {
	case DocStoreMemory:
	case DocStoreCloudinary:
		if c.Cloudinary.CloudName == "" || c.Cloudinary.APIKey == "" || c.Cloudinary.APISecret == "" {
			return errors.New("cloudinary document store needs CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET")
		}
	case DocStoreS3:
		if c.S3.Bucket == "" {
			return errors.New("s3 document store needs KATASTER_S3_BUCKET")
		}
	default:
		return fmt.Errorf("unknown document store %q", c.DocStore)
	}

	if err := c.Workflow.Validate(); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

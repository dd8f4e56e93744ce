package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"

	"couponledger/config"
)

func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	secret := fs.String("secret", os.Getenv("REWARDSD_HMAC_SECRET"), "HMAC secret shared with rewardsd")
	subject := fs.String("subject", "", "token subject; a holder address restricts claims to that holder")
	scopes := fs.StringSlice("scope", nil, "granted scope (repeatable)")
	issuer := fs.String("issuer", "", "iss claim")
	audience := fs.String("audience", "", "aud claim")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *secret == "" {
		fmt.Fprintln(stderr, "Error: --secret or REWARDSD_HMAC_SECRET is required")
		return 1
	}
	if len(*scopes) == 0 {
		fmt.Fprintln(stderr, "Error: at least one --scope is required")
		return 1
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   *subject,
		"scope": strings.Join(*scopes, " "),
		"iat":   now.Unix(),
		"exp":   now.Add(*ttl).Unix(),
	}
	if *issuer != "" {
		claims["iss"] = *issuer
	}
	if *audience != "" {
		claims["aud"] = *audience
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(*secret))
	if err != nil {
		fmt.Fprintf(stderr, "Error signing token: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, signed)
	return 0
}

func runInitParams(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("init-params", stderr)
	path := fs.String("path", "./rewards-data/params.toml", "params file to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(*path); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists\n", *path)
		return 1
	}
	if _, err := config.LoadParams(*path); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s\n", *path)
	return 0
}

func runAccount(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("account", stderr)
	conn := clientFlags(fs)
	addr := fs.String("addr", "", "holder address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *addr == "" {
		fmt.Fprintln(stderr, "Error: --addr is required")
		return 1
	}
	return call(conn(), http.MethodGet, "/v1/accounts/"+*addr, nil, stdout, stderr)
}

func runGlobal(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("global", stderr)
	conn := clientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return call(conn(), http.MethodGet, "/v1/global", nil, stdout, stderr)
}

func runEpoch(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("epoch", stderr)
	conn := clientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return call(conn(), http.MethodGet, "/v1/epochs/current", nil, stdout, stderr)
}

func runReport(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("report", stderr)
	conn := clientFlags(fs)
	id := fs.Uint64("epoch", 0, "epoch number")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *id == 0 {
		fmt.Fprintln(stderr, "Error: --epoch is required")
		return 1
	}
	return call(conn(), http.MethodGet, "/v1/epochs/"+strconv.FormatUint(*id, 10)+"/report", nil, stdout, stderr)
}

type windowBody struct {
	StartTime       uint64 `json:"startTime"`
	EndTime         uint64 `json:"endTime"`
	CheckpointStart uint64 `json:"checkpointStart"`
	CheckpointEnd   uint64 `json:"checkpointEnd"`
}

func runConfigureEpoch(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("configure-epoch", stderr)
	conn := clientFlags(fs)
	var w windowBody
	fs.Uint64Var(&w.StartTime, "start", 0, "epoch start (unix seconds)")
	fs.Uint64Var(&w.CheckpointStart, "checkpoint-start", 0, "checkpoint window start (unix seconds)")
	fs.Uint64Var(&w.CheckpointEnd, "checkpoint-end", 0, "checkpoint window end (unix seconds)")
	fs.Uint64Var(&w.EndTime, "end", 0, "epoch end (unix seconds)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return call(conn(), http.MethodPost, "/v1/admin/epochs", w, stdout, stderr)
}

func runDistribute(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("distribute", stderr)
	conn := clientFlags(fs)
	distributor := fs.String("distributor", "", "address funding the coupon")
	coupon := fs.String("coupon", "", "coupon amount in income-asset base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *distributor == "" || *coupon == "" {
		fmt.Fprintln(stderr, "Error: --distributor and --coupon are required")
		return 1
	}
	body := map[string]string{"distributor": *distributor, "coupon": *coupon}
	return call(conn(), http.MethodPost, "/v1/distributions", body, stdout, stderr)
}

func runClaim(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("claim", stderr)
	conn := clientFlags(fs)
	account := fs.String("account", "", "holder address")
	recipient := fs.String("recipient", "", "mint recipient (defaults to the holder)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *account == "" {
		fmt.Fprintln(stderr, "Error: --account is required")
		return 1
	}
	body := map[string]string{"account": *account, "recipient": *recipient}
	return call(conn(), http.MethodPost, "/v1/claims", body, stdout, stderr)
}

func runPause(paused bool) func([]string, io.Writer, io.Writer) int {
	name := "unpause"
	if paused {
		name = "pause"
	}
	return func(args []string, stdout, stderr io.Writer) int {
		fs := newFlagSet(name, stderr)
		conn := clientFlags(fs)
		if err := fs.Parse(args); err != nil {
			return 1
		}
		return call(conn(), http.MethodPost, "/v1/admin/"+name, nil, stdout, stderr)
	}
}

func runPrice(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("price", stderr)
	conn := clientFlags(fs)
	rate := fs.String("rate", "", "reward tokens per income unit, e.g. 0.985")
	observed := fs.Int64("observed-at", 0, "observation time (unix seconds, default now)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *rate == "" {
		fmt.Fprintln(stderr, "Error: --rate is required")
		return 1
	}
	body := map[string]any{"rate": *rate, "observedAt": *observed}
	return call(conn(), http.MethodPost, "/v1/admin/price", body, stdout, stderr)
}

func runExport(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("export", stderr)
	conn := clientFlags(fs)
	format := fs.String("format", "csv", "csv, jsonl or parquet")
	out := fs.String("out", "", "output file (required for parquet)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *format == "parquet" && *out == "" {
		fmt.Fprintln(stderr, "Error: --out is required for parquet")
		return 1
	}
	data, err := conn().do(http.MethodGet, "/v1/reports/export?format="+*format, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *out == "" {
		stdout.Write(data)
		return 0
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fmt.Fprintf(stderr, "Error writing %s: %v\n", *out, err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %d bytes to %s\n", len(data), *out)
	return 0
}

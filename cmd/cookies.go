package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/server"
	"github.com/drivehop/drivehop/internal/shared"
)

// CookiesGet shows per-provider session availability.
func (r *Runner) CookiesGet(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	infos, err := r.bridgeClient(config).GetCookies(ctx)
	if err != nil {
		return err
	}

	r.printCookieInfos(infos)
	return nil
}

// CookiesRefresh re-reads cookies from the daemon's configured sources.
func (r *Runner) CookiesRefresh(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	infos, err := r.bridgeClient(config).RefreshCookies(ctx)
	if err != nil {
		return err
	}

	r.printCookieInfos(infos)
	return nil
}

// CookiesPush hands a captured cookie to the daemon, either verbatim or
// extracted from a "Copy as cURL" export.
func (r *Runner) CookiesPush(ctx context.Context, cmd *cli.Command) error {
	provider := models.Provider(cmd.String("provider"))
	if !provider.Valid() {
		return fmt.Errorf("%w: unknown provider %q", shared.ErrInvalidConfig, provider)
	}

	cookie := cmd.String("cookie")
	curlFile := cmd.String("curl-file")

	if cookie == "" && curlFile == "" {
		return fmt.Errorf("%w: either --cookie or --curl-file must be provided", shared.ErrAuthUnavailable)
	}
	if cookie != "" && curlFile != "" {
		return fmt.Errorf("%w: cannot specify both --cookie and --curl-file", shared.ErrInvalidConfig)
	}

	if curlFile != "" {
		headers, err := shared.ParseCurlFile(curlFile)
		if err != nil {
			return fmt.Errorf("failed to parse cURL file: %w", err)
		}
		if headers.Cookie == "" {
			return fmt.Errorf("%w: no Cookie header in %s", shared.ErrAuthUnavailable, curlFile)
		}
		cookie = headers.Cookie
	}

	config := r.loadConfig(cmd)
	info, err := r.bridgeClient(config).PushCookies(ctx, provider, cookie)
	if err != nil {
		return err
	}

	r.writePlain("✓ Session updated for %s (fetched %s)\n", info.Provider, info.FetchedAt)
	return nil
}

// ConfigShow prints the daemon's public configuration subset.
func (r *Runner) ConfigShow(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	public, err := r.bridgeClient(config).GetConfig(ctx)
	if err != nil {
		return err
	}

	return r.writeJSON(public, cmd.Bool("pretty"))
}

// ConfigSet pushes changed configuration values to the daemon, which
// persists them to its config file.
func (r *Runner) ConfigSet(ctx context.Context, cmd *cli.Command) error {
	var update server.ConfigUpdate

	if cmd.IsSet("banned-keywords") {
		keywords := strings.Split(cmd.String("banned-keywords"), ",")
		for i := range keywords {
			keywords[i] = strings.TrimSpace(keywords[i])
		}
		update.BannedKeywords = &keywords
	}
	if v := int(cmd.Int("max-retries")); v >= 0 {
		update.MaxRetries = &v
	}
	if v := int(cmd.Int("retry-delay")); v >= 0 {
		update.RetryDelayMS = &v
	}
	if cmd.IsSet("source-folder") {
		folder := cmd.String("source-folder")
		update.DefaultSourceFolder = &folder
	}
	if cmd.IsSet("dest-folder") {
		folder := cmd.String("dest-folder")
		update.DefaultDestFolder = &folder
	}

	config := r.loadConfig(cmd)
	public, err := r.bridgeClient(config).SaveConfig(ctx, update)
	if err != nil {
		return err
	}

	return r.writeJSON(public, true)
}

func (r *Runner) printCookieInfos(infos []server.CookieInfo) {
	for _, info := range infos {
		if info.Available {
			r.writePlain("%s: available (fetched %s, age %s)\n", info.Provider, info.FetchedAt, info.Age)
		} else {
			r.writePlain("%s: no session\n", info.Provider)
		}
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wallcal/internal/config"
	"wallcal/internal/ics"
	appLog "wallcal/internal/log"
	"wallcal/internal/model"
	"wallcal/internal/store"
)

// importFrom loads definitions from src. URLs and .ics files are appended;
// anything else is read as a JSON backup and replaces the store contents.
func importFrom(ctx context.Context, s store.Store, conf *config.Config, src string) (int, error) {
	switch {
	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
		res, err := ics.NewFetcher(conf.ICSCacheDir, nil).Fetch(ctx, src)
		if err != nil {
			return 0, err
		}
		if res.FromCache {
			appLog.Warn("import: using cached feed", "url", res.URL)
		}
		return importICS(ctx, s, res.Body)

	case strings.EqualFold(filepath.Ext(src), ".ics"):
		body, err := os.ReadFile(src)
		if err != nil {
			return 0, err
		}
		return importICS(ctx, s, body)

	default:
		f, err := os.Open(src)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		return store.ImportJSON(ctx, s, f)
	}
}

func importICS(ctx context.Context, s store.Store, body []byte) (int, error) {
	defs, err := ics.Parse(body)
	if err != nil {
		return 0, err
	}
	return ics.Import(ctx, s, defs)
}

// exportTo writes every definition to path, as iCalendar when path ends in
// .ics and as a JSON backup otherwise.
func exportTo(ctx context.Context, s store.Store, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), ".ics") {
		var defs []model.Definition
		if defs, err = s.All(ctx); err == nil {
			err = ics.Export(defs, f)
		}
	} else {
		err = store.ExportJSON(ctx, s, f)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bitop-dev/t2i"
	"github.com/bitop-dev/t2i/internal/catalog"
	"github.com/bitop-dev/t2i/internal/config"
	"github.com/bitop-dev/t2i/internal/logging"
	"github.com/bitop-dev/t2i/internal/notify"
	"github.com/bitop-dev/t2i/internal/store"
)

type app struct {
	cfg     config.Config
	log     zerolog.Logger
	p       *t2i.Previewer
	metrics *http.Server
}

func setup(cmd *cobra.Command, flags *rootFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.LogFormat = flags.logFormat
	}
	if flags.metricsAddr != "" {
		cfg.MetricsAddr = flags.metricsAddr
	}

	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Out: cmd.ErrOrStderr()})
	if err != nil {
		return nil, err
	}

	storePath := cfg.StorePath
	if storePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("locate config dir: %w", err)
		}
		storePath = filepath.Join(dir, "t2i", "state.yaml")
	}
	st, err := store.OpenFile(storePath)
	if err != nil {
		return nil, err
	}

	var models []t2i.Model
	if cfg.CatalogFile != "" {
		if models, err = catalog.LoadFile(cfg.CatalogFile); err != nil {
			return nil, err
		}
	}

	a := &app{cfg: cfg, log: log}
	var reg prometheus.Registerer
	if cfg.MetricsAddr != "" {
		r := prometheus.NewRegistry()
		r.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg = r
		a.serveMetrics(r)
	}

	maxRetries := cfg.MaxRetries
	a.p, err = t2i.New(t2i.Options{
		BaseURL:        cfg.BaseURL,
		ModelPageURL:   cfg.ModelPageURL,
		StatusURL:      cfg.StatusURL,
		Models:         models,
		DefaultToken:   cfg.Token,
		MaxRetries:     &maxRetries,
		BaseDelay:      cfg.BaseDelay,
		MaxDelay:       cfg.MaxDelay,
		RequestTimeout: cfg.RequestTimeout,
		CheckURL:       cfg.CheckURL,
		CheckInterval:  cfg.CheckInterval,
		Origin:         cfg.Origin,
		Store:          st,
		Sink:           notify.NewLogSink(log),
		Logger:         log,
		Registerer:     reg,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	if err := a.p.Restore(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	a.metrics = &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Str("addr", a.cfg.MetricsAddr).Msg("metrics server failed")
		}
	}()
	a.log.Info().Str("addr", a.cfg.MetricsAddr).Msg("serving metrics")
}

func (a *app) close() {
	if a.p != nil {
		a.p.Stop()
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metrics.Shutdown(ctx)
	}
}

func (a *app) requireToken() error {
	if a.p.Credential() == "" {
		return errors.New("no API token: run `t2i login <token>` or set T2I_TOKEN")
	}
	return nil
}

func runLogin(cmd *cobra.Command, flags *rootFlags, token string) error {
	a, err := setup(cmd, flags)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.p.SaveCredential(cmd.Context(), token); err != nil {
		return err
	}
	return printModels(cmd, a.p)
}

func runModels(cmd *cobra.Command, flags *rootFlags) error {
	a, err := setup(cmd, flags)
	if err != nil {
		return err
	}
	defer a.close()
	return printModels(cmd, a.p)
}

func runSelect(cmd *cobra.Command, flags *rootFlags, arg string) error {
	index, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("model index %q: %w", arg, err)
	}
	a, err := setup(cmd, flags)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.p.SelectModel(index); err != nil {
		return err
	}
	return printModels(cmd, a.p)
}

func runProbe(cmd *cobra.Command, flags *rootFlags, index int) error {
	a, err := setup(cmd, flags)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.requireToken(); err != nil {
		return err
	}
	if index >= 0 {
		if _, err := a.p.CheckModel(cmd.Context(), index); err != nil {
			return err
		}
	} else if err := a.p.CheckModels(cmd.Context()); err != nil {
		return err
	}
	return printModels(cmd, a.p)
}

func runFindModels(cmd *cobra.Command, flags *rootFlags, reliable bool) error {
	a, err := setup(cmd, flags)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.requireToken(); err != nil {
		return err
	}

	if reliable {
		m, err := a.p.UseReliableModel(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "selected %s (%s)\n", m.ID, m.Status)
		return nil
	}

	found, err := a.p.FindWorkingModels(cmd.Context())
	if err != nil {
		return err
	}
	if !found {
		return errors.New("no working models found, try again later")
	}
	if a.cfg.CatalogFile != "" {
		if err := catalog.WriteFile(a.cfg.CatalogFile, a.p.Models()); err != nil {
			return err
		}
		a.log.Info().Str("path", a.cfg.CatalogFile).Msg("catalog saved")
	}
	return printModels(cmd, a.p)
}

func runGenerate(cmd *cobra.Command, flags *rootFlags, prompt, out string, index int) error {
	a, err := setup(cmd, flags)
	if err != nil {
		return err
	}
	defer a.close()
	if index >= 0 {
		if err := a.p.SelectModel(index); err != nil {
			return err
		}
	}
	a.p.SetPrompt(prompt)

	img, err := a.p.Generate(cmd.Context())
	if err != nil {
		var e *t2i.Error
		if errors.As(err, &e) && e.Link != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "open the model directly: %s\n", e.Link)
		}
		return err
	}
	if err := img.WriteFile(out); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%dx%d %s)\n", out, img.Width, img.Height, img.Format)
	return nil
}

func runCORSCheck(cmd *cobra.Command, flags *rootFlags, watch bool) error {
	a, err := setup(cmd, flags)
	if err != nil {
		return err
	}
	defer a.close()

	if !watch {
		s := a.p.CheckCrossOrigin(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), t2i.CrossOriginHint(s))
		return nil
	}
	if err := a.p.Init(cmd.Context()); err != nil {
		return err
	}
	<-cmd.Context().Done()
	fmt.Fprintln(cmd.OutOrStdout(), t2i.CrossOriginHint(a.p.CrossOrigin()))
	return nil
}

func printModels(cmd *cobra.Command, p *t2i.Previewer) error {
	_, selected := p.Selected()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tINDEX\tID\tNAME\tSTATUS")
	for i, m := range p.Models() {
		mark := ""
		if i == selected {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", mark, i, m.ID, m.Name, m.Status)
	}
	return w.Flush()
}

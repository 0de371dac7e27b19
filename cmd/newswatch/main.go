package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfriesen/newswatch/config"
	"github.com/mfriesen/newswatch/feed"
	"github.com/mfriesen/newswatch/logger"
	"github.com/mfriesen/newswatch/model"
	"github.com/mfriesen/newswatch/monitor"
	"github.com/mfriesen/newswatch/opml"
	"github.com/mfriesen/newswatch/store"
	"github.com/mfriesen/newswatch/web"
	"github.com/urfave/cli/v2"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:    "newswatch",
		Usage:   "Monitor RSS/Atom feeds for keywords",
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				EnvVars: []string{"NEWSWATCH_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the monitor scheduler and HTTP API",
				Action: serve,
			},
			{
				Name:   "scan",
				Usage:  "Run a single scan and exit",
				Action: scanOnce,
			},
			{
				Name:   "status",
				Usage:  "Show the persisted scan status",
				Action: showStatus,
			},
			{
				Name:  "feeds",
				Usage: "Manage feed sources",
				Subcommands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Add a feed source",
						ArgsUsage: "<name> <url>",
						Action:    addFeed,
					},
					{
						Name:   "list",
						Usage:  "List all feed sources",
						Action: listFeeds,
					},
					{
						Name:      "enable",
						Usage:     "Enable a feed source",
						ArgsUsage: "<feed-id>",
						Action:    setFeedActive(true),
					},
					{
						Name:      "disable",
						Usage:     "Disable a feed source (takes effect next scan)",
						ArgsUsage: "<feed-id>",
						Action:    setFeedActive(false),
					},
					{
						Name:      "remove",
						Usage:     "Remove a feed source",
						ArgsUsage: "<feed-id>",
						Action:    removeFeed,
					},
					{
						Name:      "import",
						Usage:     "Import feed sources from an OPML file",
						ArgsUsage: "<opml-file>",
						Action:    importOPML,
					},
					{
						Name:  "export",
						Usage: "Export feed sources to OPML",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:    "output",
								Aliases: []string{"o"},
								Usage:   "Output file (default: stdout)",
							},
						},
						Action: exportOPML,
					},
				},
			},
			{
				Name:  "keywords",
				Usage: "Manage keywords",
				Subcommands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Add keywords",
						ArgsUsage: "<word>...",
						Action:    addKeywords,
					},
					{
						Name:   "list",
						Usage:  "List all keywords",
						Action: listKeywords,
					},
					{
						Name:      "enable",
						Usage:     "Enable a keyword",
						ArgsUsage: "<keyword-id>",
						Action:    setKeywordActive(true),
					},
					{
						Name:      "disable",
						Usage:     "Disable a keyword (takes effect next scan)",
						ArgsUsage: "<keyword-id>",
						Action:    setKeywordActive(false),
					},
					{
						Name:      "remove",
						Usage:     "Remove a keyword",
						ArgsUsage: "<keyword-id>",
						Action:    removeKeyword,
					},
				},
			},
			{
				Name:  "articles",
				Usage: "Query found articles",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List found articles",
						Flags: []cli.Flag{
							&cli.IntFlag{
								Name:    "limit",
								Aliases: []string{"l"},
								Value:   50,
								Usage:   "Maximum number of articles to return",
							},
							&cli.IntFlag{
								Name:    "offset",
								Aliases: []string{"o"},
								Value:   0,
								Usage:   "Offset for pagination",
							},
							&cli.StringFlag{
								Name:    "keyword",
								Aliases: []string{"k"},
								Usage:   "Filter by matched keyword",
							},
							&cli.StringFlag{
								Name:  "source",
								Usage: "Filter by source feed name",
							},
							&cli.StringFlag{
								Name:    "since",
								Aliases: []string{"s"},
								Usage:   "Show articles found since duration (e.g., 12h, 7d, 2w)",
							},
						},
						Action: listArticles,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.String("config"))
}

func getStore(cfg *config.Config) (*store.Store, error) {
	s, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return s, nil
}

// buildMonitor assembles the store, fetcher, and monitor from config,
// seeding the database and restoring persisted status along the way.
func buildMonitor(cfg *config.Config, log logger.Logger) (*store.Store, *monitor.Monitor, error) {
	s, err := getStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	if err := s.Seed(seedFeeds(cfg), seedKeywords(cfg)); err != nil {
		s.Close()
		return nil, nil, fmt.Errorf("failed to seed database: %w", err)
	}

	mon := monitor.New(s, feed.NewFetcher(cfg.Monitor.FetchTimeout), log)

	st, err := s.LoadStatus()
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	mon.Restore(st)

	return s, mon, nil
}

func seedFeeds(cfg *config.Config) []model.FeedSource {
	feeds := make([]model.FeedSource, 0, len(cfg.Seeds.Feeds))
	for _, f := range cfg.Seeds.Feeds {
		feeds = append(feeds, model.FeedSource{Name: f.Name, URL: f.URL, Active: true})
	}
	return feeds
}

func seedKeywords(cfg *config.Config) []model.Keyword {
	keywords := make([]model.Keyword, 0, len(cfg.Seeds.Keywords))
	for _, w := range cfg.Seeds.Keywords {
		keywords = append(keywords, model.Keyword{Word: w, Active: true})
	}
	return keywords
}

func outputJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return cli.Exit(err.Error(), ExitGeneralError)
	}
	defer log.Sync()

	s, mon, err := buildMonitor(cfg, log)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	sched := monitor.NewScheduler(mon, cfg.Monitor.Interval, log)
	if err := sched.Start(); err != nil {
		return cli.Exit(err.Error(), ExitGeneralError)
	}
	defer sched.Stop()

	if cfg.Monitor.ScanOnStart {
		if err := sched.TriggerNow(context.Background()); err != nil && !errors.Is(err, monitor.ErrScanInFlight) {
			log.Error("initial scan failed to start", logger.Error(err))
		}
	}

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: web.NewServer(s, mon, sched, log).Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", logger.String("addr", cfg.Server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return cli.Exit(err.Error(), ExitGeneralError)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", logger.Error(err))
	}
	return nil
}

func scanOnce(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return cli.Exit(err.Error(), ExitGeneralError)
	}
	defer log.Sync()

	s, mon, err := buildMonitor(cfg, log)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	if err := mon.Scan(c.Context); err != nil {
		return cli.Exit(fmt.Sprintf("Scan failed: %v", err), ExitGeneralError)
	}

	return outputJSON(mon.Status())
}

func showStatus(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	s, err := getStore(cfg)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	st, err := s.LoadStatus()
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	if n, err := s.CountArticles(); err == nil {
		st.TotalArticles = n
	}

	return outputJSON(st)
}

func openStore(c *cli.Context) (*store.Store, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, cli.Exit(err.Error(), ExitUsageError)
	}
	s, err := getStore(cfg)
	if err != nil {
		return nil, cli.Exit(err.Error(), ExitDataError)
	}
	return s, nil
}

func addFeed(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.Exit("Usage: newswatch feeds add <name> <url>", ExitUsageError)
	}

	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	newFeed := &model.FeedSource{
		Name:   c.Args().Get(0),
		URL:    c.Args().Get(1),
		Active: true,
	}

	if err := newFeed.Validate(); err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}

	if err := s.SaveFeed(newFeed); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to save feed: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"success": true,
		"feed":    newFeed,
	})
}

func listFeeds(c *cli.Context) error {
	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	feeds, err := s.ListFeeds()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to list feeds: %v", err), ExitDataError)
	}

	return outputJSON(feeds)
}

func setFeedActive(active bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		id, err := idArg(c, "feed-id")
		if err != nil {
			return err
		}

		s, err := openStore(c)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.SetFeedActive(id, active); err != nil {
			return cli.Exit(fmt.Sprintf("Failed to update feed: %v", err), ExitDataError)
		}

		return outputJSON(map[string]interface{}{
			"feed_id": id,
			"active":  active,
		})
	}
}

func removeFeed(c *cli.Context) error {
	id, err := idArg(c, "feed-id")
	if err != nil {
		return err
	}

	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteFeed(id); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to delete feed: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"success": true,
		"feed_id": id,
	})
}

func importOPML(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: newswatch feeds import <opml-file>", ExitUsageError)
	}

	file, err := os.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to open OPML file: %v", err), ExitDataError)
	}
	defer file.Close()

	feeds, err := opml.Parse(file)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to parse OPML: %v", err), ExitDataError)
	}

	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	imported := 0
	skipped := 0
	var importErrors []string

	for _, newFeed := range feeds {
		if err := s.SaveFeed(newFeed); err != nil {
			// Feed might already exist (duplicate URL)
			skipped++
			importErrors = append(importErrors, fmt.Sprintf("%s: %v", newFeed.URL, err))
			continue
		}
		imported++
	}

	return outputJSON(map[string]interface{}{
		"success":  true,
		"imported": imported,
		"skipped":  skipped,
		"total":    len(feeds),
		"errors":   importErrors,
	})
}

func exportOPML(c *cli.Context) error {
	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	feeds, err := s.ListFeeds()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to list feeds: %v", err), ExitDataError)
	}

	outputPath := c.String("output")
	var writer io.Writer

	if outputPath == "" {
		writer = os.Stdout
	} else {
		file, err := os.Create(outputPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to create output file: %v", err), ExitDataError)
		}
		defer file.Close()
		writer = file
	}

	if err := opml.Generate(writer, feeds); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to generate OPML: %v", err), ExitDataError)
	}

	if outputPath != "" {
		return outputJSON(map[string]interface{}{
			"success": true,
			"file":    outputPath,
			"count":   len(feeds),
		})
	}

	return nil
}

func addKeywords(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: newswatch keywords add <word>...", ExitUsageError)
	}

	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	var added []*model.Keyword
	for i := 0; i < c.NArg(); i++ {
		kw := &model.Keyword{Word: c.Args().Get(i), Active: true}
		if err := kw.Validate(); err != nil {
			return cli.Exit(err.Error(), ExitDataError)
		}
		if err := s.SaveKeyword(kw); err != nil {
			return cli.Exit(fmt.Sprintf("Failed to save keyword %q: %v", kw.Word, err), ExitDataError)
		}
		added = append(added, kw)
	}

	return outputJSON(map[string]interface{}{
		"success":  true,
		"keywords": added,
	})
}

func listKeywords(c *cli.Context) error {
	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	keywords, err := s.ListKeywords()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to list keywords: %v", err), ExitDataError)
	}

	return outputJSON(keywords)
}

func setKeywordActive(active bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		id, err := idArg(c, "keyword-id")
		if err != nil {
			return err
		}

		s, err := openStore(c)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.SetKeywordActive(id, active); err != nil {
			return cli.Exit(fmt.Sprintf("Failed to update keyword: %v", err), ExitDataError)
		}

		return outputJSON(map[string]interface{}{
			"keyword_id": id,
			"active":     active,
		})
	}
}

func removeKeyword(c *cli.Context) error {
	id, err := idArg(c, "keyword-id")
	if err != nil {
		return err
	}

	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteKeyword(id); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to delete keyword: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"success":    true,
		"keyword_id": id,
	})
}

func listArticles(c *cli.Context) error {
	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	opts, err := store.BuildQueryOptions(
		c.Int("limit"),
		c.Int("offset"),
		c.String("keyword"),
		c.String("source"),
		c.String("since"),
	)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid query options: %v", err), ExitUsageError)
	}

	articles, err := s.GetArticles(opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to list articles: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"count":    len(articles),
		"limit":    opts.Limit,
		"offset":   opts.Offset,
		"articles": articles,
	})
}

// idArg parses the single numeric ID argument of a subcommand.
func idArg(c *cli.Context, name string) (int64, error) {
	if c.NArg() < 1 {
		return 0, cli.Exit(fmt.Sprintf("Usage: %s <%s>", c.Command.HelpName, name), ExitUsageError)
	}
	var id int64
	if _, err := fmt.Sscanf(c.Args().Get(0), "%d", &id); err != nil {
		return 0, cli.Exit(fmt.Sprintf("Invalid %s", name), ExitUsageError)
	}
	return id, nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hierynomus/taipan"
	home "github.com/mitchellh/go-homedir"
	"github.com/rb3ckers/cdnrace/internal/config"
	"github.com/rb3ckers/cdnrace/internal/proxy"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	Version string
	Commit  string
	Date    string
)

var EnvPrefix = "CDNRACE"

func RootCommand(cfg *config.Config) *cobra.Command {
	var verbosity int

	cmd := &cobra.Command{
		Use:   "cdnrace",
		Short: "Serves a static site, racing its origin against a mirror",
		Long: `
HTTP proxy in front of a static site that:
* sends every asset request both to the origin and to a content-delivery mirror
* returns whichever answers first, cancelling the other request
* replaces mirror not-found answers by the site's fallback page

The race status is available via GET on '/status', metrics on '/metrics'.
`,
		Version: fmt.Sprintf("%s (Built on: %s, Commit: %s)", Version, Date, Commit),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch verbosity {
			case 0:
				// Nothing to do
			case 1:
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			case 2: //nolint:gomnd
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			default:
				zerolog.SetGlobalLevel(zerolog.TraceLevel)
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			PrintUsage(cfg)
			return RunProxy(cmd.Context(), cfg)
		},
	}

	cmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Print more verbose logging")

	cmd.Flags().StringP("listen", "l", ":8080", "Address to listen on and serve the site from")
	cmd.Flags().StringP("origin", "o", "http://localhost:8888", "Origin of the static site")
	cmd.Flags().StringP("mirror", "m", "", "Root URL of the content-delivery mirror of the site")
	cmd.Flags().String("fallback-page", "404.html", "Page under the mirror root served when the mirror does not have a file")
	cmd.Flags().Bool("cancellation", true, "Cancel the slower request once the race is won")
	cmd.Flags().String("status", "status", "Path on which the race status can be retrieved via GET")
	cmd.Flags().String("status-address", "", "Address on which the status endpoint is made available. Leave empty to expose it on the address the site is served on")
	cmd.Flags().String("username", "", "Username to protect the 'status' endpoint with.")
	cmd.Flags().String("password", "", "Password to protect the 'status' endpoint with.")
	cmd.Flags().String("passwordFile", "", "Provide a file that contains username/password to protect the 'status' endpoint. Contains 1 username/password combination separated by ':'.")
	cmd.Flags().Int("breaker-failures", 5, "Stop racing the mirror after this many successive failures, 0 disables.")                         //nolint:gomnd
	cmd.Flags().Int("breaker-retry-after", 60, "Seconds after which a mirror that stopped being raced is retried.")                         //nolint:gomnd
	cmd.Flags().Int("request-timeout", 20, "Seconds to wait for response headers from the origin or the mirror.")                           //nolint:gomnd
	cmd.Flags().String("controller-state", "", "State of a redirect layer in front of the origin, 'activated' disables racing when it matches")
	cmd.Flags().String("controller-script", "", "Script URL of a redirect layer in front of the origin, carrying its mirror root 't' and fallback page '404'")
	cmd.Flags().Bool("trust-controller-headers", false, "Read the redirect layer from the X-Redirect-Controller-* request headers")

	return cmd
}

func RunProxy(ctx context.Context, cfg *config.Config) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	p, err := proxy.NewProxy(cfg)
	if err != nil {
		return err
	}

	if err := p.Start(ctx); err != nil {
		return err
	}

	go func() {
		sig := <-sigs
		log.Info().Str("signal", sig.String()).Msg("Received signal, exiting")

		if err := p.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop")
		}
	}()

	return p.Wait()
}

func Execute(ctx context.Context) {
	cfg := &config.Config{}
	cmd := RootCommand(cfg)

	homeFolder, err := home.Expand("~/.cdnrace")
	if err != nil {
		fmt.Printf("%s", err)
		os.Exit(1)
	}

	zerolog.SetGlobalLevel(zerolog.ErrorLevel)

	taipanConfig := &taipan.Config{
		DefaultConfigName:  "cdnrace",
		ConfigurationPaths: []string{".", homeFolder},
		EnvironmentPrefix:  EnvPrefix,
		AddConfigFlag:      true,
		ConfigObject:       cfg,
		PrefixCommands:     true,
	}

	t := taipan.New(taipanConfig)
	t.Inject(cmd)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Printf("🎃 %s\n", err)
		os.Exit(1)
	}
}

func PrintUsage(cfg *config.Config) {
	address := cfg.ListenAddress
	if cfg.StatusListenAddress != "" {
		address = cfg.StatusListenAddress
	}

	statusURL := fmt.Sprintf("http://%s/%s", address, cfg.StatusEndpoint)

	fmt.Printf("Racing %s against %s\n", cfg.Origin, cfg.MirrorRoot)
	fmt.Printf("Status : curl %s\n", statusURL)
	fmt.Printf("Metrics: curl http://%s/metrics\n", address)
	fmt.Println()
}

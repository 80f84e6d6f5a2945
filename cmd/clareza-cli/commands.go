package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clareza/clareza/internal/bridge"
	"github.com/clareza/clareza/internal/checks"
	"github.com/clareza/clareza/internal/config"
	"github.com/clareza/clareza/internal/logging"
)

// exitError carries a process exit code out of RunE.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func loadConfig() (*config.Config, error) {
	if configFlag == "" {
		return config.Default(), nil
	}
	return config.Load(configFlag)
}

// bridgeOptions builds options for a local bridge printing to stdout.
func bridgeOptions(cfg *config.Config) (bridge.Options, error) {
	model := cfg.Bridge.Model
	if modelFlag != "" {
		model = modelFlag
	}
	models, err := bridge.NewModelConfig(model)
	if err != nil {
		return bridge.Options{}, err
	}
	opts := bridge.OptionsFromConfig(cfg)
	if binaryFlag != "" {
		opts.Locator.Binary = binaryFlag
	}
	opts.Models = models
	opts.Sink = &terminal{out: os.Stdout}
	opts.Log = logging.New(logging.Config{Output: io.Discard})
	return opts, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func promptCmd() *cobra.Command {
	var (
		filePath string
		delivery string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "prompt [flags] <text>",
		Short: "Run one prompt through the tool and stream its answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts, err := bridgeOptions(cfg)
			if err != nil {
				return err
			}
			if delivery != "" {
				opts.Delivery = delivery
			}
			if timeout > 0 {
				opts.Timeout = timeout
			}

			req := bridge.PromptRequest{UserText: strings.Join(args, " ")}
			if filePath != "" {
				data, err := os.ReadFile(filePath)
				if err != nil {
					return fmt.Errorf("reading %s: %w", filePath, err)
				}
				content := string(data)
				req.InjectedContent = &content
			}

			ctx, stop := signalContext()
			defer stop()

			out := bridge.NewOneShot(opts).Run(ctx, req)
			if out.OK() {
				return nil
			}
			if out.ExitCode != nil && *out.ExitCode > 0 {
				return exitError{code: *out.ExitCode}
			}
			return exitError{code: 1}
		},
	}
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "document whose content is injected into the prompt")
	cmd.Flags().StringVar(&delivery, "delivery", "", "prompt delivery: stdin or argument")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "session deadline (default from config)")
	return cmd
}

func interactiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Keep the tool running and send each input line to it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts, err := bridgeOptions(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			s := bridge.NewInteractive(opts)
			if _, err := s.Start(ctx); err != nil {
				return err
			}
			defer s.Stop()

			lines := make(chan string)
			go func() {
				defer close(lines)
				sc := bufio.NewScanner(os.Stdin)
				for sc.Scan() {
					lines <- sc.Text()
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					if err := s.Send(line); err != nil {
						if errors.Is(err, bridge.ErrNotRunning) {
							return nil
						}
						return err
					}
				}
			}
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [tool...]",
		Short: "Report whether the tools are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"gemini", "bun"}
			}
			p := checks.Checker{Log: logging.New(logging.Config{Output: io.Discard})}
			for _, tool := range args {
				res, err := p.Check(cmd.Context(), tool)
				if err != nil {
					return err
				}
				switch {
				case res.Installed && res.Version != nil:
					fmt.Printf("%s %s\n", okStyle.Render(res.Name), *res.Version)
				case res.Installed:
					fmt.Printf("%s installed\n", okStyle.Render(res.Name))
				default:
					msg := "not installed"
					if res.Error != nil {
						msg = *res.Error
					}
					fmt.Printf("%s %s\n", missingStyle.Render(res.Name), dimStyle.Render(msg))
				}
			}
			return nil
		},
	}
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the accepted models",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, m := range config.Models {
				if m == config.DefaultModel {
					fmt.Printf("%s %s\n", m, dimStyle.Render("(default)"))
					continue
				}
				fmt.Println(m)
			}
		},
	}
}

func statusCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(strings.TrimRight(url, "/") + "/status")
			if err != nil {
				return fmt.Errorf("connecting to backend: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				var apiErr map[string]string
				json.NewDecoder(resp.Body).Decode(&apiErr)
				return fmt.Errorf("backend returned %d: %s", resp.StatusCode, apiErr["message"])
			}

			var status map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return fmt.Errorf("parsing status: %w", err)
			}
			out, _ := json.MarshalIndent(status, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", fmt.Sprintf("http://%s:%d", config.DefaultBind, config.DefaultPort), "backend URL")
	return cmd
}

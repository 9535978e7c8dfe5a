package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	sbregistry "github.com/schemabridge/schemabridge/internal/adapter/registry"
	"github.com/schemabridge/schemabridge/internal/config"
)

// runAdmin dispatches admin subcommands (check-registry, add-registry, list-registries).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "check-registry":
		return runAdminCheckRegistry(args[1:])
	case "add-registry":
		return runAdminAddRegistry(args[1:])
	case "list-registries":
		return runAdminListRegistries(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: schemabridge admin <command> [options]

Commands:
  check-registry    Probe a registry endpoint and report subject counts
  add-registry      Add a registry to the configuration file
  list-registries   List configured registries
  help              Show this help message

Examples:
  schemabridge admin check-registry --name prod
  schemabridge admin check-registry --url http://localhost:8081 --username admin
  schemabridge admin add-registry --name staging --url http://localhost:8082 --read-only
  schemabridge admin list-registries
`)
}

func runAdminCheckRegistry(args []string) error {
	fs := flag.NewFlagSet("check-registry", flag.ContinueOnError)
	name := fs.String("name", "", "configured registry name")
	rawURL := fs.String("url", "", "registry URL (bypasses the config file)")
	username := fs.String("username", "", "basic auth username")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rc := config.Registry{Name: *name, URL: *rawURL, Username: *username}
	if *rawURL == "" {
		if *name == "" {
			return fmt.Errorf("--name or --url is required")
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		found := false
		for _, candidate := range cfg.Registries {
			if candidate.Name == *name {
				rc = candidate
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("registry %q is not configured", *name)
		}
	}

	if rc.Username != "" && rc.Password == "" {
		pass, err := promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		rc.Password = pass
	}
	if rc.Name == "" {
		rc.Name = rc.URL
	}

	client := sbregistry.New(sbregistry.Config{
		Name:     rc.Name,
		URL:      rc.URL,
		Username: rc.Username,
		Password: rc.Password,
		Timeout:  10 * time.Second,
	}, nil, nil, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	subjects, err := client.ListSubjects(ctx, "")
	if err != nil {
		return fmt.Errorf("probe %s: %w", rc.URL, err)
	}

	contexts, err := client.ListContexts(ctx)
	if err != nil {
		// Older registries have no contexts endpoint; the default one still exists.
		contexts = []string{"."}
	}

	fmt.Fprintf(os.Stderr, "Registry %s is reachable: %d subjects, %d contexts\n",
		rc.Name, len(subjects), len(contexts))
	return nil
}

func runAdminAddRegistry(args []string) error {
	fs := flag.NewFlagSet("add-registry", flag.ContinueOnError)
	name := fs.String("name", "", "registry name (required)")
	rawURL := fs.String("url", "", "registry URL (required)")
	username := fs.String("username", "", "basic auth username")
	password := fs.String("password", "", "basic auth password (prompted if username is set)") //nolint:gosec // CLI flag
	readOnly := fs.Bool("read-only", false, "reject mutating calls against this registry")
	file := fs.String("file", config.DefaultConfigFile, "configuration file to update")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	if *rawURL == "" {
		return fmt.Errorf("--url is required")
	}

	pass := *password
	if *username != "" && pass == "" {
		var err error
		pass, err = promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}

	var cfg struct {
		Registries []config.Registry `yaml:"registries"`
		Rest       map[string]any    `yaml:",inline"`
	}
	if data, err := os.ReadFile(*file); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parse %s: %w", *file, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", *file, err)
	}

	for _, rc := range cfg.Registries {
		if rc.Name == *name {
			return fmt.Errorf("registry %q already exists in %s", *name, *file)
		}
	}

	cfg.Registries = append(cfg.Registries, config.Registry{
		Name:     *name,
		URL:      *rawURL,
		Username: *username,
		Password: pass,
		ReadOnly: *readOnly,
	})

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(*file, out, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", *file, err)
	}

	fmt.Fprintf(os.Stderr, "Registry %s added to %s\n", *name, *file)
	return nil
}

func runAdminListRegistries(args []string) error {
	fs := flag.NewFlagSet("list-registries", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if len(cfg.Registries) == 0 {
		fmt.Println("No registries configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tURL\tAUTH\tREAD_ONLY")
	for i := range cfg.Registries {
		auth := "none"
		if cfg.Registries[i].Username != "" {
			auth = "basic"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\n",
			cfg.Registries[i].Name, cfg.Registries[i].URL, auth, cfg.Registries[i].ReadOnly)
	}
	return w.Flush()
}

// promptPassword reads a password from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)                         // newline after password input
	if err != nil {
		return "", err
	}
	return string(b), nil
}

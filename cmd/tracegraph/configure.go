package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tracegraph/tracegraph/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Interactive setup wizard (with OS keychain support)",
	Long: `Walk through TraceGraph configuration step-by-step.

This will configure:
1. Neo4j connection (password stored in OS keychain when available)
2. Tracker base URL and API token
3. Code host token
4. Tracker projects and repositories to sync

Tokens go to the OS keychain, never to the config file. On systems
without a keychain, export JIRA_API_TOKEN, GITHUB_TOKEN and
NEO4J_PASSWORD instead.`,
	RunE: runConfigure,
}

func runConfigure(cmd *cobra.Command, args []string) error {
	fmt.Println("🔧 TraceGraph Configuration Wizard")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	keychainAvailable := config.KeychainAvailable()
	if !keychainAvailable {
		fmt.Println("⚠️  OS keychain not available (headless system or Linux without libsecret)")
		fmt.Println("   Set credentials via environment variables instead.")
		fmt.Println()
	}

	// Step 1: graph database
	fmt.Println("Step 1/4: Neo4j connection")
	cfg.Neo4j.URI = promptDefault(reader, "URI", cfg.Neo4j.URI)
	cfg.Neo4j.Username = promptDefault(reader, "Username", cfg.Neo4j.Username)
	if keychainAvailable {
		if password := promptSecret("Password"); password != "" {
			if err := config.SetSecret(config.SecretNeo4jPassword, password); err != nil {
				return err
			}
			fmt.Println("   Stored in keychain.")
		}
	}
	fmt.Println()

	// Step 2: tracker
	fmt.Println("Step 2/4: Tracker")
	cfg.Jira.BaseURL = promptDefault(reader, "Base URL", cfg.Jira.BaseURL)
	cfg.Jira.Username = promptDefault(reader, "Username (empty for bearer auth)", cfg.Jira.Username)
	if keychainAvailable {
		fmt.Printf("   Current token: %s\n", config.MaskToken(cfg.Jira.Token))
		if token := promptSecret("API token (empty keeps current)"); token != "" {
			if err := config.SetSecret(config.SecretJiraToken, token); err != nil {
				return err
			}
			fmt.Println("   Stored in keychain.")
		}
	}
	projects := promptDefault(reader, "Projects (comma separated)", strings.Join(cfg.Jira.Projects, ","))
	cfg.Jira.Projects = splitCommaList(projects)
	fmt.Println()

	// Step 3: code host
	fmt.Println("Step 3/4: Code host")
	if keychainAvailable {
		fmt.Printf("   Current token: %s\n", config.MaskToken(cfg.GitHub.Token))
		if token := promptSecret("Token (empty keeps current)"); token != "" {
			if err := config.SetSecret(config.SecretGitHubToken, token); err != nil {
				return err
			}
			fmt.Println("   Stored in keychain.")
		}
	}
	fmt.Println()

	// Step 4: write config
	fmt.Println("Step 4/4: Save")
	path := promptDefault(reader, "Config path", cfgFile)

	// Tokens live in the keychain; never write them to disk.
	toSave := *cfg
	toSave.Neo4j.Password = ""
	toSave.Jira.Token = ""
	toSave.GitHub.Token = ""
	if err := toSave.Save(path); err != nil {
		return err
	}

	fmt.Printf("\n✅ Configuration written to %s\n", path)
	fmt.Println("Next: tracegraph migrate, then tracegraph sync")
	return nil
}

func promptDefault(reader *bufio.Reader, label, current string) string {
	if current != "" {
		fmt.Printf("   %s [%s]: ", label, current)
	} else {
		fmt.Printf("   %s: ", label)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return current
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	return line
}

// promptSecret reads without echoing. Falls back to empty on non-terminal
// stdin rather than echoing a credential.
func promptSecret(label string) string {
	fmt.Printf("   %s: ", label)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func splitCommaList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

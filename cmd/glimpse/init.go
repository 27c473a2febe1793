// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sigil-dev/glimpse/internal/config"
	"github.com/sigil-dev/glimpse/internal/extract"
	"github.com/sigil-dev/glimpse/internal/secrets"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

// initHTTPClient validates API keys entered in the wizard.
var initHTTPClient = &http.Client{Timeout: 10 * time.Second}

// configPathForWrite is where the wizard writes its config. Tests override it.
var configPathForWrite = config.DefaultConfigPath

type wizardStep int

const (
	stepSelect   wizardStep = iota // choose a provider for the current role
	stepKey                        // enter its API key
	stepValidate                   // key check in flight
	stepWrite                      // storing keys and writing the config
	stepDone
	stepError
)

// wizardRole is one extractor the wizard configures.
type wizardRole struct {
	name      string
	purpose   string
	providers []string
}

var wizardRoles = []wizardRole{
	{name: "tagger", purpose: "describes images with tags", providers: []string{extract.ProviderAnthropic, extract.ProviderGoogle, extract.ProviderNone}},
	{name: "embedder", purpose: "places images and text in one vector space", providers: []string{extract.ProviderOpenAI, extract.ProviderNone}},
}

// roleChoice is what the wizard collected for one role.
type roleChoice struct {
	Provider string
	APIKey   string
	BaseURL  string
}

// initResult holds one choice per entry of wizardRoles.
type initResult struct {
	Choices []roleChoice
}

func (r initResult) choice(role string) roleChoice {
	for i, wr := range wizardRoles {
		if wr.name == role && i < len(r.Choices) {
			return r.Choices[i]
		}
	}
	return roleChoice{Provider: extract.ProviderNone}
}

type (
	keyValidMsg   struct{ role int }
	keyInvalidMsg struct {
		role int
		err  error
	}
	configWrittenMsg struct{ path string }
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

// initModel is the bubbletea model behind glimpse init.
type initModel struct {
	step           wizardStep
	role           int
	cursor         int
	keyInput       textinput.Model
	spinner        spinner.Model
	result         initResult
	validationErr  string
	configPath     string
	secretStore    secrets.Store
	baseURLs       map[string]string
	errFinal       error
	forceOverwrite bool
}

func newInitModel(store secrets.Store) initModel {
	key := textinput.New()
	key.Placeholder = "paste API key here"
	key.EchoMode = textinput.EchoPassword
	key.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:        stepSelect,
		keyInput:    key,
		spinner:     sp,
		result:      initResult{Choices: make([]roleChoice, len(wizardRoles))},
		secretStore: store,
		baseURLs:    map[string]string{},
	}
}

func (m initModel) Init() tea.Cmd {
	return nil
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case keyValidMsg:
		if msg.role != m.role {
			return m, nil
		}
		return m.advance()

	case keyInvalidMsg:
		if msg.role != m.role {
			return m, nil
		}
		m.validationErr = msg.err.Error()
		m.step = stepKey
		m.keyInput.Focus()
		return m, nil

	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	if m.step == stepKey {
		var cmd tea.Cmd
		m.keyInput, cmd = m.keyInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m initModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.step {
	case stepSelect:
		return m.handleSelectKey(msg)
	case stepKey:
		return m.handleKeyInput(msg)
	}
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleSelectKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	providers := wizardRoles[m.role].providers
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(providers)-1 {
			m.cursor++
		}
	case "enter":
		p := providers[m.cursor]
		m.result.Choices[m.role] = roleChoice{Provider: p, BaseURL: m.baseURLs[wizardRoles[m.role].name]}
		m.validationErr = ""
		if p == extract.ProviderNone {
			return m.advance()
		}
		m.step = stepKey
		m.keyInput.SetValue("")
		m.keyInput.Focus()
		return m, textinput.Blink
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(m.keyInput.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.result.Choices[m.role].APIKey = key
		m.validationErr = ""
		m.step = stepValidate
		m.keyInput.Blur()
		return m, tea.Batch(m.spinner.Tick, validateKeyCmd(m.role, m.result.Choices[m.role]))
	case "esc":
		m.step = stepSelect
		m.validationErr = ""
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.keyInput, cmd = m.keyInput.Update(msg)
	return m, cmd
}

// advance moves to the next role, or writes the config after the last one.
func (m initModel) advance() (tea.Model, tea.Cmd) {
	if m.role < len(wizardRoles)-1 {
		m.role++
		m.cursor = 0
		m.step = stepSelect
		return m, nil
	}
	m.step = stepWrite
	return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
}

func (m initModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  Glimpse Setup  ") + "\n\n")

	role := wizardRoles[m.role]
	progress := fmt.Sprintf("Step %d/%d: ", m.role+1, len(wizardRoles))

	switch m.step {
	case stepSelect:
		b.WriteString(promptStyle.Render(progress+"choose a "+role.name+" ("+role.purpose+")") + "\n\n")
		for i, p := range role.providers {
			if i == m.cursor {
				b.WriteString(selectedStyle.Render("  > "+p) + "\n")
			} else {
				b.WriteString(dimStyle.Render("    "+p) + "\n")
			}
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepKey:
		b.WriteString(promptStyle.Render(progress+m.result.Choices[m.role].Provider+" API key") + "\n\n")
		b.WriteString(m.keyInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  esc to go back  ctrl+c to quit"))

	case stepValidate:
		b.WriteString(m.spinner.View() + " Checking " + m.result.Choices[m.role].Provider + " API key…\n")

	case stepWrite:
		b.WriteString(m.spinner.View() + " Writing config…\n")

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		b.WriteString("Run " + promptStyle.Render("glimpse ingest <dir>") + " to add images.\n")
		b.WriteString("Run " + promptStyle.Render("glimpse doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

func validateKeyCmd(role int, c roleChoice) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := extract.ValidateKey(ctx, initHTTPClient, c.Provider, c.APIKey, c.BaseURL); err != nil {
			return keyInvalidMsg{role: role, err: err}
		}
		return keyValidMsg{role: role}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, forceOverwrite bool) tea.Cmd {
	return func() tea.Msg {
		path, err := storeKeysAndWriteConfig(result, store, forceOverwrite)
		if err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

// secretName is the keyring entry holding provider's API key.
func secretName(provider string) string {
	return provider + "-api-key"
}

// generateConfigYAML renders the wizard result. API keys appear only as
// keyring:// references.
func generateConfigYAML(result initResult) string {
	var sb strings.Builder
	sb.WriteString("# Glimpse configuration, generated by glimpse init.\n")
	sb.WriteString("# Run 'glimpse config init <path>' for a template listing every key.\n\n")

	sb.WriteString("data_dir: ~/.glimpse\n\n")
	sb.WriteString("storage:\n  backend: sqlite\n\n")

	sb.WriteString("extractors:\n")
	for _, role := range wizardRoles {
		c := result.choice(role.name)
		fmt.Fprintf(&sb, "  %s:\n", role.name)
		fmt.Fprintf(&sb, "    provider: %s\n", c.Provider)
		if c.Provider == extract.ProviderNone {
			continue
		}
		fmt.Fprintf(&sb, "    api_key: %q\n", secrets.URI(secrets.Service, secretName(c.Provider)))
		if c.BaseURL != "" {
			fmt.Fprintf(&sb, "    base_url: %q\n", c.BaseURL)
		}
	}

	sb.WriteString("\nsearch:\n  top_k: 10\n\n")
	sb.WriteString("server:\n  listen: \"127.0.0.1:18790\"\n  allow_ingest: false\n")
	return sb.String()
}

// storeKeysAndWriteConfig saves each entered key to the keyring and writes
// the config file. Keys already stored are left in place if the write fails.
func storeKeysAndWriteConfig(result initResult, store secrets.Store, forceOverwrite bool) (string, error) {
	cfgPath, err := configPathForWrite()
	if err != nil {
		return "", err
	}
	if !forceOverwrite {
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			return "", sigilerr.Errorf(sigilerr.CodeConfigAlreadyExists,
				"config file already exists at %s; use --force to overwrite", cfgPath)
		}
	}

	for _, c := range result.Choices {
		if c.Provider == extract.ProviderNone || c.APIKey == "" {
			continue
		}
		if err := store.Set(secrets.Service, secretName(c.Provider), c.APIKey); err != nil {
			return "", sigilerr.Errorf(sigilerr.CodeSecretStoreFailure, "storing %s API key: %w", c.Provider, err)
		}
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "creating config directory %s: %w", dir, err)
	}
	if err := os.WriteFile(cfgPath, []byte(generateConfigYAML(result)), 0o600); err != nil {
		return "", sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "writing config to %s: %w", cfgPath, err)
	}
	return cfgPath, nil
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard",
		Long: `Walk through choosing a tagger and an embedder and entering their API keys.

Keys are checked against the provider, stored in the OS keyring, and
referenced from the config file as keyring:// URIs. For a non-interactive
setup, use 'glimpse config init' and 'glimpse secret set'.`,
		// The wizard writes the config itself; skip the root's bootstrap.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE:              runInit,
	}
	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	cmd.Flags().String("embedder-base-url", "", "OpenAI-compatible endpoint serving the embedding model")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"glimpse init needs an interactive terminal.\n"+
				"Use 'glimpse config init' and 'glimpse secret set' instead.")
		return sigilerr.New(sigilerr.CodeCLISetupFailure, "glimpse init: not an interactive terminal")
	}

	force, _ := cmd.Flags().GetBool("force")
	baseURL, _ := cmd.Flags().GetString("embedder-base-url")

	m := newInitModel(secretStoreFactory())
	m.forceOverwrite = force
	m.baseURLs["embedder"] = baseURL

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "init wizard: %w", err)
	}
	fm, ok := final.(initModel)
	if !ok {
		return sigilerr.New(sigilerr.CodeCLISetupFailure, "unexpected model type after wizard")
	}
	if fm.errFinal != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "init failed: %w", fm.errFinal)
	}
	if fm.step == stepDone {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", fm.configPath)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

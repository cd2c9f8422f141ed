package commands

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/bldr/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create configuration file",
	Long: `Initialize a new bldr configuration file.

By default, creates .bldr.yml in the project directory.
Use --hcl to write .bldr.hcl instead, or --global to create the global
defaults file at ~/.config/bldr/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().Bool("global", false, "Create global config instead of project config")
	initCmd.Flags().Bool("hcl", false, "Write the project config in HCL")
	initCmd.Flags().BoolP("force", "f", false, "Overwrite existing config without prompting")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	global, _ := cmd.Flags().GetBool("global")
	useHCL, _ := cmd.Flags().GetBool("hcl")
	force, _ := cmd.Flags().GetBool("force")
	out := cmd.OutOrStdout()
	applyColorFlags(cmd)
	s := newBuildStyles()

	var configPath, content, configType string
	switch {
	case global:
		configPath = config.GlobalConfigPath()
		content = generateGlobalConfig()
		configType = "global"
	default:
		dir, err := projectDir(cmd)
		if err != nil {
			return err
		}
		name := filepath.Base(dir)
		configPath = filepath.Join(dir, config.ProjectConfigName)
		content = generateProjectConfig(name)
		if useHCL {
			configPath = filepath.Join(dir, ".bldr.hcl")
			content = generateHCLConfig(name)
		}
		configType = "project"
	}

	if _, err := os.Stat(configPath); err == nil && !force {
		fmt.Fprintf(out, "%s %s\n", s.Warn.Render("Config already exists:"), configPath)
		fmt.Fprint(out, "Overwrite? [y/N]: ")
		reader := bufio.NewReader(cmd.InOrStdin())
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(out, "\n%s %s\n\n", s.Success.Render(fmt.Sprintf("Created %s config:", configType)), configPath)
	fmt.Fprintln(out, s.Accent.Render("Next steps:"))
	if global {
		fmt.Fprintln(out, "  1. Adjust logging, history and reporting defaults")
		fmt.Fprintln(out, "  2. Run 'bldr init' in a project to create its config")
	} else {
		fmt.Fprintln(out, "  1. Edit the tasks and profiles for this project")
		fmt.Fprintln(out, "  2. Run 'bldr list' to check them")
		fmt.Fprintln(out, "  3. Run 'bldr build default' to build")
	}
	fmt.Fprintln(out)
	return nil
}

func generateGlobalConfig() string {
	return `# Bldr Global Configuration
# Location: ~/.config/bldr/config.yaml
#
# Defaults shared by all projects. Project files (.bldr.yml) override them.

logging:
  level: info                    # debug | info | warn | error
  format: json                   # json | text
  # path: ~/.local/share/bldr/logs

history:
  enabled: true
  # path: ~/.local/share/bldr/bldr.db

reporting:
  enabled: true
  # dir: ~/.local/share/bldr/reports
`
}

func generateProjectConfig(name string) string {
	return fmt.Sprintf(`# Bldr project configuration
name: %q
description: ""

# Profiles compose tasks. uses.before / uses.after import the tasks of
# other profiles around this profile's own tasks.
profiles:
  default:
    description: Lint and test
    tasks:
      - lint
      - test
  release:
    description: Full build
    uses:
      before:
        - default
    tasks:
      - package

# Tasks are ordered lists of calls. A failing call stops the build unless
# the task sets runOnFailure: true.
tasks:
  lint:
    description: Static checks
    runOnFailure: true
    calls:
      - type: exec
        executable: go
        arguments: [vet, ./...]
  test:
    description: Unit tests
    calls:
      - type: exec
        executable: go
        arguments: [test, ./...]
        timeout: 10m
  package:
    description: Build the binary
    calls:
      - type: exec
        executable: go
        arguments: [build, -o, bin/%s, .]
      - type: service
        service: echo
        arguments: [built, bin/%s]

watch:
  paths: [.]
  # Build outputs written inside the project belong here.
  ignore: [.git, bin, dist, "*.log"]
  debounce: 500ms

# schedule:
#   cron: "0 2 * * *"
`, name, name, name)
}

func generateHCLConfig(name string) string {
	return fmt.Sprintf(`# Bldr project configuration
name = %q

profile "default" {
  description = "Lint and test"
  tasks       = ["lint", "test"]
}

profile "release" {
  description = "Full build"
  tasks       = ["package"]

  uses {
    before = ["default"]
  }
}

task "lint" {
  description    = "Static checks"
  run_on_failure = true

  call "exec" {
    executable = "go"
    arguments  = ["vet", "./..."]
  }
}

task "test" {
  description = "Unit tests"

  call "exec" {
    executable = "go"
    arguments  = ["test", "./..."]
    timeout    = "10m"
  }
}

task "package" {
  description = "Build the binary"

  call "exec" {
    executable = "go"
    arguments  = ["build", "-o", "bin/%s", "."]
  }

  call "service" {
    service   = "echo"
    arguments = ["built", "bin/%s"]
  }
}

watch {
  paths    = ["."]
  # Build outputs written inside the project belong here.
  ignore   = [".git", "bin", "dist", "*.log"]
  debounce = "500ms"
}
`, name, name, name)
}

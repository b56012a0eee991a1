package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jivehq/jive/test/pkg/client"
	"github.com/jivehq/jive/test/pkg/coverage"
	"github.com/jivehq/jive/test/pkg/repl"
	"github.com/jivehq/jive/test/pkg/suites"
	testpkg "github.com/jivehq/jive/test/pkg/testing"
)

func main() {
	// Parse flags
	serverURL := flag.String("server", "http://localhost:3454/mcp", "Jive MCP server URL")
	namespace := flag.String("namespace", "", "Bind the session to a namespace (or set JIVE_NAMESPACE env var)")
	interactive := flag.Bool("interactive", false, "Start interactive REPL mode")
	interactiveShort := flag.Bool("i", false, "Start interactive REPL mode (shorthand)")
	testMode := flag.Bool("test", false, "Run automated tests")
	coverageReport := flag.Bool("coverage-report", false, "Show test coverage report")
	testFilter := flag.String("filter", "", "Filter tests by name (substring match)")
	testTags := flag.String("tags", "", "Filter tests by tags (comma-separated)")
	excludeTags := flag.String("exclude-tags", "", "Exclude tests with these tags (comma-separated)")
	verbose := flag.Bool("verbose", false, "Enable verbose output")
	jsonOutput := flag.Bool("json", false, "Output results as JSON")
	listTools := flag.Bool("list-tools", false, "List all available tools")
	tool := flag.String("tool", "", "Tool name to invoke")
	params := flag.String("params", "{}", "Tool parameters as JSON")
	flag.Parse()

	// Get namespace from flag or environment
	ns := *namespace
	if ns == "" {
		ns = os.Getenv("JIVE_NAMESPACE")
	}

	// Create client
	mcpClient := client.NewMCPClient(*serverURL)
	if ns != "" {
		mcpClient.SetNamespace(ns)
	}

	// Test connection
	if err := mcpClient.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to server: %v\n", err)
		os.Exit(1)
	}

	if !*jsonOutput {
		fmt.Printf("✓ Connected to Jive MCP server at %s\n\n", *serverURL)
	}

	// Show coverage report if requested
	if *coverageReport {
		// Get test directory (parent of cmd directory)
		testDir, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to get working directory: %v\n", err)
			os.Exit(1)
		}
		// If we're in test/cmd, go up one level to test/
		if strings.HasSuffix(testDir, "/cmd") || strings.HasSuffix(testDir, "\\cmd") {
			testDir = filepath.Dir(testDir)
		}

		analyzer := coverage.NewAnalyzer(mcpClient, testDir)
		report, err := analyzer.Analyze()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to analyze coverage: %v\n", err)
			os.Exit(1)
		}

		report.PrintReport()

		// Print suggestions for untested tools
		if len(report.UntestedList) > 0 {
			fmt.Println("💡 Suggestions:")
			for _, toolName := range report.UntestedList {
				suite := coverage.SuggestTestSuite(toolName)
				fmt.Printf("  • Add test for %s to pkg/suites/%s\n", toolName, suite)
			}
		}

		// Exit with error code if coverage is below 100%
		if report.CoveragePercent < 100.0 {
			os.Exit(1)
		}
		return
	}

	// Run tests if requested
	if *testMode {
		runner := testpkg.NewTestRunner(mcpClient)
		runner.SetVerbose(*verbose)
		runner.SetJSONOutput(*jsonOutput)

		// Parse filter
		filter := testpkg.TestFilter{
			NamePattern: *testFilter,
		}

		if *testTags != "" {
			filter.Tags = strings.Split(*testTags, ",")
		}

		if *excludeTags != "" {
			filter.ExcludeTags = strings.Split(*excludeTags, ",")
		}

		runner.SetFilter(filter)

		// Add test suites
		runner.AddTests(suites.GetBasicTests())
		runner.AddTests(suites.GetWorkItemTests())
		runner.AddTests(suites.GetHierarchyTests())
		runner.AddTests(suites.GetSearchTests())
		runner.AddTests(suites.GetProgressTests())
		runner.AddTests(suites.GetExecutionTests())
		runner.AddTests(suites.GetSyncTests())
		runner.AddTests(suites.GetReorderTests())
		runner.AddTests(suites.GetNamespaceTests())
		runner.AddTests(suites.GetLegacyTests()) // Retired tool-name aliases

		// Run tests
		_ = runner.Run()

		// Exit with appropriate code
		os.Exit(runner.ExitCode())
	}

	// Start interactive REPL if requested
	if *interactive || *interactiveShort {
		replInstance := repl.NewREPL(mcpClient)
		if err := replInstance.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "REPL error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// List tools if requested
	if *listTools {
		tools, err := mcpClient.ListTools()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list tools: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Available tools (%d):\n", len(tools))
		for _, t := range tools {
			fmt.Printf("  - %s\n", t.Name)
			if t.Description != "" {
				fmt.Printf("    %s\n", t.Description)
			}
		}
		return
	}

	// Invoke tool if specified
	if *tool != "" {
		// Parse parameters
		var toolParams map[string]interface{}
		if err := json.Unmarshal([]byte(*params), &toolParams); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to parse parameters: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Invoking tool: %s\n", *tool)
		fmt.Printf("Parameters: %s\n\n", *params)

		// Invoke tool
		result, err := mcpClient.InvokeTool(*tool, toolParams)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to invoke tool: %v\n", err)
			os.Exit(1)
		}

		// Display result
		if result.IsError {
			fmt.Println("❌ Tool returned error:")
		} else {
			fmt.Println("✓ Tool succeeded:")
		}

		content := result.GetToolContent()
		fmt.Println(content)

		if result.IsError {
			os.Exit(1)
		}
		return
	}

	// No action specified
	fmt.Println("Usage:")
	fmt.Println("  Test mode:     jive-test --test [--filter <pattern>] [--tags <tags>] [--verbose] [--json]")
	fmt.Println("  Coverage:      jive-test --coverage-report")
	fmt.Println("  Interactive:   jive-test -i")
	fmt.Println("  List tools:    jive-test --list-tools")
	fmt.Println("  Invoke tool:   jive-test --tool <name> --params '{\"key\":\"value\"}'")
	fmt.Println("\nExamples:")
	fmt.Println("  jive-test --test                               # Run all tests")
	fmt.Println("  jive-test --coverage-report                    # Show test coverage")
	fmt.Println("  jive-test --test --filter search               # Run tests matching 'search'")
	fmt.Println("  jive-test --test --tags smoke                  # Run tests tagged 'smoke'")
	fmt.Println("  jive-test --test --exclude-tags execution      # Skip the execution suite")
	fmt.Println("  jive-test --test --verbose                     # Run with verbose logging")
	fmt.Println("  jive-test --test --json                        # Output as JSON")
	fmt.Println("  jive-test -i                                   # Start interactive REPL")
	fmt.Println("  jive-test --list-tools                         # List all tools")
	fmt.Println("  jive-test --tool jive_get_work_item --params '{\"action\":\"list\"}'")
	fmt.Println("  jive-test --tool jive_search_content --params '{\"query\":\"auth\"}'")
}

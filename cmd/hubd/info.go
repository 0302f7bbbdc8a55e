package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/emergent-company/memoryhub/internal/config"
)

// runInfo handles the "hubd info" subcommand: it prints the resolved
// configuration and the tool surface without starting the server.
func runInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	configPath := fs.String("config", "", "path to hub.toml")
	showConfig := fs.Bool("show-config", false, "print the resolved configuration")
	fs.Parse(args)

	if *showConfig {
		printResolvedConfig(*configPath)
		return
	}
	printGeneralInfo()
}

func printResolvedConfig(configPath string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hubd info: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, `Resolved configuration

  server.name        %s
  server.version     %s
  transport.mode     %s
  transport.host     %s
  transport.port     %s
  transport.ws_path  %s
  graph.uri          %s
  graph.database     %s
  graph.pool_size    %d
  notebook.vault     %s
  model.runtime      %s:%s
  model.fallback     %s
  governance.enforce %t
  governance.block   %t
  log.level          %s
`,
		cfg.Server.Name, cfg.Server.Version,
		cfg.Transport.Mode, cfg.Transport.Host, cfg.Transport.Port, cfg.Transport.WSPath,
		cfg.Graph.URI, cfg.Graph.Database, cfg.Graph.MaxPoolSize,
		cfg.Notebook.VaultRoot,
		cfg.Model.Host, cfg.Model.Port, cfg.Model.Fallback,
		cfg.Governance.EnforceLogging, cfg.Governance.BlockOnFailure,
		cfg.Log.Level,
	)
}

func printGeneralInfo() {
	fmt.Fprintf(os.Stdout, `hubd %s — Memory-and-Reasoning Hub

hubd is an MCP server multiplexing tool calls from many AI clients onto a
property graph store, a filesystem notebook vault, and local model
runtimes. Every tool call passes the governance pipeline: a schema-valid
log record is written to the vault before and after the action.

TRANSPORT MODES

  stdio (default)
    Communicates over stdin/stdout using JSON-RPC 2.0. Used when launched
    as a subprocess by an MCP client.

  http
    Runs as a standalone HTTP+WebSocket server for multi-client operation.

    Tool calls:    POST /tools/call  {server, tool, arguments}
    MCP over WS:   GET <ws_path> (one JSON-RPC message per frame)
    Health check:  GET /health, /health/ready, /health/live
    Metrics:       GET /metrics
    Requires:      HUB_BEARER_TOKEN

SUB-SERVERS

  graph-memory:     create_entity, create_entities, get_entity, find_entities,
                    search_entities, update_entity, delete_entity,
                    count_entities, create_relationship, get_relationships,
                    query_graph, find_shortest_path, find_all_paths
  reasoning-chain:  start_thinking, add_step, conclude, get_chain,
                    list_chains, branch_chain
  task-manager:     create_task, get_task, update_task, complete_task,
                    delete_task, list_tasks, add_subtask, set_dependency,
                    get_dependencies
  model-router:     chat, complete, embed, vision, list_models,
                    get_model_info, pull_model, set_default_model,
                    reasoning, coding
  notebook:         write_note, append_note, read_note, list_notes,
                    search_notes

RESOURCES

  notebook://log/today    The current day's governance log

Run "hubd info -show-config" to print the resolved configuration.
`, Version)
}

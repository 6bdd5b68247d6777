// Package agent implements a sandboxed coding agent loop.
//
// It pairs a language model with four filesystem tools confined to a working
// directory. The loop sends the conversation and tool schemas to the model,
// executes the tool calls the model selects strictly in order, feeds the
// results back, and repeats until the model answers in plain text or the
// iteration ceiling forces termination.
//
// The package is organized around these core concepts:
//
//   - Loop: The orchestrator holding conversation state, dispatching tool
//     calls, emitting events, and enforcing the iteration ceiling.
//   - Registry: Registration and dispatch of tool definitions, including
//     argument validation against each tool's declared parameter shape.
//   - EventEmitter: Typed event stream for host application diagnostics.
//
// Quick start:
//
//	box, _ := sandbox.New("./workspace", sandbox.DefaultExecConfig())
//	reg := agent.NewRegistry()
//	agent.RegisterCoreTools(reg)
//	loop := agent.NewLoop(client, reg, box, agent.DefaultConfig())
//
//	result, err := loop.Run(ctx, "Create a hello.py file")
package agent

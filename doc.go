/*
Package waypoint is the orchestration core of a public-transport travel assistant.

A chat turn flows through four stages. The message is classified into intents
(by rules, or by a language model with rule fallback), each intent becomes a small
DAG of tool calls, the DAG runs in concurrent waves against the remote travel tools,
and the results are compiled into a structured summary that is narrated back to the
user, either deterministically or by the language model.

# Key Features

  - Multi-intent turns: "weather in Zermatt and trains there tomorrow" runs both plans.
  - Conversation memory: origin, destination, times and shown trips are remembered
    per session so that "the first one" or "go back" resolve on later turns.
  - Resilience: tool calls are retried with jittered backoff behind per-service
    circuit breakers, and results are cached per session.
  - Edges: a JSON/SSE HTTP API with rate limiting, an MCP server, and a streaming client.

# Usage

	eng, err := waypoint.New(
		waypoint.WithToolCaller(caller),   // MCP or HTTP transport to the tools
		waypoint.WithGenerator(generator), // optional language model
	)
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	resp, err := eng.Chat(ctx, domain.ChatRequest{
		Message:   "Trains from Zurich to Bern tomorrow at 9am",
		SessionID: "s1",
	})

Without a tool caller the engine runs against deterministic in-process demo tools,
and without a generator it answers from the built-in formatter.
*/
package waypoint

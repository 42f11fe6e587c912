// Package metricskey defines the metrics emitted by the agent.
package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsAgentAnswers is base for counter metric for answers by status
	StatsAgentAnswers = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_answers",
		Help:         "stats_agent_answers provides total answers by terminal status",
		RequiredTags: []string{"agent", "status"},
	}

	StatsAgentIterations = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_iterations",
		Help:         "stats_agent_iterations provides total model invocations made by the loop",
		RequiredTags: []string{"agent"},
	}

	StatsLLMMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_messages_sent",
		Help:         "stats_llm_messages_sent provides total messages sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_calls_failed",
		Help:         "stats_llm_calls_failed provides total failed model invocations",
		RequiredTags: []string{"agent", "model"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsTimedOut = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_timed_out",
		Help:         "stats_tool_calls_timed_out provides total tool calls that exceeded the timeout",
		RequiredTags: []string{"tool"},
	}

	StatsMCPDiscoveryFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_discovery_failed",
		Help:         "stats_mcp_discovery_failed provides total failed tool discoveries per server",
		RequiredTags: []string{"server"},
	}

	StatsMCPToolsDiscovered = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_tools_discovered",
		Help:         "stats_mcp_tools_discovered provides total tools discovered per server",
		RequiredTags: []string{"server"},
	}
)

// Perf
var (
	PerfAgentAnswer = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_agent_answer",
		Help:         "perf_agent_answer provides duration of an answer",
		RequiredTags: []string{"agent"},
	}

	PerfLLMCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_llm_call",
		Help:         "perf_llm_call provides duration of a model invocation",
		RequiredTags: []string{"agent", "model"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfMCPDiscovery = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_mcp_discovery",
		Help:         "perf_mcp_discovery provides duration of tool discovery per server",
		RequiredTags: []string{"server"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfAgentAnswer,
	&PerfLLMCall,
	&PerfMCPDiscovery,
	&PerfToolCall,
	&StatsAgentAnswers,
	&StatsAgentIterations,
	&StatsLLMCallsFailed,
	&StatsLLMInputTokens,
	&StatsLLMMessagesSent,
	&StatsLLMOutputTokens,
	&StatsMCPDiscoveryFailed,
	&StatsMCPToolsDiscovered,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
	&StatsToolCallsTimedOut,
}

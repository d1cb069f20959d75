/*
Package ai provides generative AI capabilities.

This package has one subdomain:

  - genai/llm: the Large Language Model client interface, with an Anthropic adapter

Usage:

	import "github.com/chris-alexander-pop/agentfabric/pkg/ai/genai/llm/adapters/anthropic"

	client := anthropic.New("key")
	resp, err := client.Chat(ctx, messages)
*/
package ai

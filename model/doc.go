// Package model defines the uniform capability provider contract wrapping
// external text-generation backends, plus the Manager that selects among
// configured providers with ordered fallback.
//
// A Provider turns a structured prompt (instructions, history window, tool
// definitions) into a single Result: plain text, structured tool calls, or
// both. Vendor adapters live in the subpackages anthropic, openai and
// gemini; downstream logic never branches per vendor.
package model

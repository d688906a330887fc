// Package model defines the provider-agnostic contract for language model
// completion inside runloop.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool-call representation (ToolCall, ToolCallDelta) so the
//     completion provider maps them onto action events without vendor branches
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Vendors (OpenAI, Anthropic) implement the Model interface from this package
// so the completion provider stays decoupled from concrete SDKs.
package model

// Copyright 2020-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shapeform

// parseConfig collects the options a single Deserialize call is run with.
type parseConfig struct {
	maxDepth     int
	forceEventTier bool
	compressed   bool
}

func defaultParseConfig() parseConfig {
	return parseConfig{maxDepth: 1000}
}

// ParseOption configures a single call to [Deserialize].
type ParseOption func(*parseConfig)

// MaxDepth bounds recursion depth for both tiers, guarding against stack
// exhaustion on adversarial input (spec §4.2/§4.3, "Recursion").
func MaxDepth(n int) ParseOption {
	return func(c *parseConfig) { c.maxDepth = n }
}

// WithEventTier forces the interpreter tier even for shapes the JIT
// compiler could otherwise handle, useful for debugging a suspected JIT
// miscompilation by comparing the two tiers' output.
func WithEventTier() ParseOption {
	return func(c *parseConfig) { c.forceEventTier = true }
}

// WithCompressedInput records that the input is zstd-compressed. Deserialize
// does not read this setting: the input reaches the format parser
// unchanged, so compressed postcard input has to be passed through
// format/postcard's Decompress or DecompressReader first.
func WithCompressedInput() ParseOption {
	return func(c *parseConfig) { c.compressed = true }
}

// compileConfig collects the options a shape's JIT compilation is run with.
type compileConfig struct {
	disableJIT bool
}

// CompileOption configures [Compile].
type CompileOption func(*compileConfig)

// DisableJIT forces Compile to report a shape as JIT-incompatible
// unconditionally, so callers always fall back to the interpreter tier.
func DisableJIT() CompileOption {
	return func(c *compileConfig) { c.disableJIT = true }
}

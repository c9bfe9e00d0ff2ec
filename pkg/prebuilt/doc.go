// Package prebuilt provides opinionated, ready-made workflow templates
// ("prebuilts") for common app shapes such as retrieval-augmented chat and
// routed question answering. Each prebuilt takes a typed configuration and
// returns a laid-out blockgraph.Record that passes publish validation.
package prebuilt

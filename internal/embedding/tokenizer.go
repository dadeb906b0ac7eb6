package embedding

import (
	"hash/fnv"
	"strings"
)

// CLIP text vocabulary markers.
const (
	tokenBOS  = 49406
	tokenEOS  = 49407
	vocabSize = 49152 // hash range below the marker tokens
)

// Tokenizer produces token IDs for the CLIP text encoder (input_ids, attention_mask).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64)
}

// SimpleTokenizer is a lowercasing word-split tokenizer with hash-based token IDs.
// It stands in for the model's BPE vocabulary; ranking only needs the token stream
// to be deterministic per input text.
type SimpleTokenizer struct{}

// Tokenize splits text into words and produces padded token IDs up to maxTokens,
// framed with BOS/EOS the way the CLIP text encoder expects.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64) {
	if maxTokens < 2 {
		maxTokens = 77
	}
	words := SplitWords(strings.ToLower(text))
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)

	inputIDs[0] = tokenBOS
	attentionMask[0] = 1

	pos := 1
	for _, word := range words {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(HashString(word) % vocabSize)
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = tokenEOS
	attentionMask[pos] = 1
	return inputIDs, attentionMask
}

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	return strings.Fields(text)
}

// HashString returns a stable FNV-1a hash of s.
func HashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

//go:build onnx

package onnx

import (
	"encoding/json"
	"os"
	"strings"
	"unicode"
)

// Special token ids of the uncased BERT vocabulary.
const (
	clsToken = 101
	sepToken = 102
	unkToken = 100
)

// Tokenizer is a lower-casing WordPiece tokenizer driven by the vocab in a
// HuggingFace tokenizer.json.
type Tokenizer struct {
	vocab map[string]int
}

// LoadTokenizer reads the vocabulary from tokenizer.json.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return &Tokenizer{vocab: file.Model.Vocab}, nil
}

// Encode returns input ids and the attention mask, both padded to maxLen
// and framed by [CLS] ... [SEP].
func (t *Tokenizer) Encode(text string, maxLen int) (ids, mask []int64) {
	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)

	tokens := t.Tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}

	ids[0], mask[0] = clsToken, 1
	for i, tok := range tokens {
		ids[i+1], mask[i+1] = tok, 1
	}
	end := len(tokens) + 1
	ids[end], mask[end] = sepToken, 1
	return ids, mask
}

// Tokenize splits text into WordPiece ids. Punctuation and CJK characters
// become standalone tokens.
func (t *Tokenizer) Tokenize(text string) []int64 {
	var tokens []int64
	for _, word := range splitWords(strings.ToLower(text)) {
		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		for _, piece := range t.wordPiece(word) {
			if id, ok := t.vocab[piece]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, unkToken)
			}
		}
	}
	return tokens
}

// wordPiece greedily matches the longest vocabulary prefix.
func (t *Tokenizer) wordPiece(word string) []string {
	runes := []rune(word)
	var pieces []string
	for start := 0; start < len(runes); {
		end := len(runes)
		matched := ""
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				matched = sub
				break
			}
		}
		if matched == "" {
			return []string{"[UNK]"}
		}
		pieces = append(pieces, matched)
		start = end
	}
	return pieces
}

func splitWords(text string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r), unicode.Is(unicode.Han, r):
			flush()
			words = append(words, string(r))
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

package vectorspace

import (
	"regexp"
	"strings"

	"github.com/jdkato/prose/v2"
)

// wordPattern keeps runs of two or more letters, digits or underscores.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

type Tokenizer interface {
	Tokenize(text string) []string
}

// ProseTokenizer splits text with prose's treebank tokenizer and then keeps
// only word-like pieces of each token.
type ProseTokenizer struct{}

func (ProseTokenizer) Tokenize(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	doc, err := prose.NewDocument(
		text,
		prose.WithSegmentation(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return RegexpTokenizer{}.Tokenize(text)
	}

	var out []string
	for _, tok := range doc.Tokens() {
		out = append(out, wordPattern.FindAllString(strings.ToLower(tok.Text), -1)...)
	}
	return out
}

// RegexpTokenizer is the dependency-light fallback used when prose fails.
type RegexpTokenizer struct{}

func (RegexpTokenizer) Tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

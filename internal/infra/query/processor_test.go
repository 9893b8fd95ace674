package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"toolgate/internal/domain"
)

func TestTokenize_NormalizesAndDropsStopWords(t *testing.T) {
	tokens := Tokenize("Read, a FILE; from the Project!")
	require.Equal(t, []string{"read", "file", "project"}, tokens)
}

func TestTokenize_StopWordsOnly(t *testing.T) {
	require.Empty(t, Tokenize("the a of"))
	require.Empty(t, Tokenize(""))
	require.Empty(t, Tokenize("   \t  "))
}

func TestProcess_ExpandsSynonyms(t *testing.T) {
	pq := Process("send msg")
	require.Equal(t, []string{"send", "msg"}, pq.Tokens)
	require.Equal(t, "send msg message", pq.Enhanced)
	require.Equal(t, "send msg", pq.Original)
}

func TestProcess_Intent(t *testing.T) {
	tests := []struct {
		text string
		want domain.QueryIntent
	}{
		{"read a file", domain.IntentLookup},
		{"send a message", domain.IntentAction},
		{"list channels", domain.IntentLookup},
		{"weather tomorrow", domain.IntentUnknown},
		{"", domain.IntentUnknown},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, Process(tc.text).Intent, "text: %q", tc.text)
	}
}

func TestProcess_ConcurrentCallsAreIndependent(t *testing.T) {
	done := make(chan struct{})
	for i := 0; i < 16; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 200; j++ {
				pq := Process("read msg from repo")
				require.Equal(t, domain.IntentLookup, pq.Intent)
				require.Equal(t, "read msg from repo", pq.Original)
			}
		}()
	}
	for i := 0; i < 16; i++ {
		<-done
	}
}

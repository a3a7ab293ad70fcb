package embedding

import (
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn := tok.Tokenize("hello world", 10)
	if len(ids) != 4 || len(attn) != 4 {
		t.Fatalf("lengths: ids=%d attn=%d, want unpadded 4", len(ids), len(attn))
	}
	if ids[0] != bosTokenID || ids[3] != eosTokenID {
		t.Errorf("expected <s> ... </s> framing, got %v", ids)
	}
	for i, a := range attn {
		if a != 1 {
			t.Errorf("attention[%d] = %d, want 1", i, a)
		}
	}
	for _, id := range ids[1:3] {
		if id < 3 || id >= vocabSize {
			t.Errorf("word id %d outside vocabulary", id)
		}
	}
}

func TestSimpleTokenizer_truncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn := tok.Tokenize("a b c d e f g h", 4)
	if len(ids) != 4 || len(attn) != 4 {
		t.Fatalf("len(ids)=%d len(attn)=%d", len(ids), len(attn))
	}
	if ids[0] != bosTokenID {
		t.Errorf("first token should be <s>, got %d", ids[0])
	}
	if ids[3] == eosTokenID {
		t.Error("truncation keeps the leading tokens, so </s> is cut")
	}
}

func TestSimpleTokenizer_emptyText(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, _ := tok.Tokenize("", 0)
	if len(ids) != 2 || ids[0] != bosTokenID || ids[1] != eosTokenID {
		t.Errorf("got %v", ids)
	}
}

func TestClip(t *testing.T) {
	ids, mask := clip(nil, 8)
	if len(ids) != 1 || ids[0] != padTokenID || mask[0] != 0 {
		t.Errorf("empty input: ids=%v mask=%v", ids, mask)
	}
	ids, mask = clip([]int64{0, 5, 6, 2}, 0)
	if len(ids) != 4 || len(mask) != 4 {
		t.Errorf("no budget should keep everything: %v", ids)
	}
	ids, _ = clip([]int64{0, 5, 6, 2}, 3)
	if len(ids) != 3 || ids[2] != 6 {
		t.Errorf("clip to 3: %v", ids)
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("  a  b\tc\n  ")
	if len(words) != 3 {
		t.Errorf("expected 3 words, got %v", words)
	}
	if SplitWords("") != nil {
		t.Error("empty string should return nil")
	}
}

func TestHashString(t *testing.T) {
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
	if HashString("abc") == HashString("abd") {
		t.Error("different words should hash differently")
	}
	if HashString("some long word that may overflow") < 0 {
		t.Error("hash should be non-negative")
	}
}

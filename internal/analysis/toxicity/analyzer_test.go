package toxicity

import "testing"

func TestAnalyzeCleanMessage(t *testing.T) {
	scores := Analyze("Have a nice day, see you tomorrow")
	if scores.Toxicity() != 0 {
		t.Fatalf("expected zero toxicity, got %f", scores.Toxicity())
	}
	if len(scores) != len(Labels) {
		t.Fatalf("expected every label present, got %d", len(scores))
	}
}

func TestAnalyzeInsultIsModerate(t *testing.T) {
	scores := Analyze("you are an idiot")
	got := scores.Toxicity()
	if got < 0.3 || got >= 0.7 {
		t.Fatalf("expected moderate toxicity, got %f", got)
	}
	if scores[Insult] == 0 {
		t.Fatal("expected insult label to fire")
	}
}

func TestAnalyzeThreatIsSevere(t *testing.T) {
	scores := Analyze("I will kill you, you worthless idiot")
	if scores.Toxicity() < 0.7 {
		t.Fatalf("expected severe toxicity, got %f", scores.Toxicity())
	}
	if scores.Dominant() != Threat {
		t.Fatalf("expected threat to dominate, got %s", scores.Dominant())
	}
}

func TestAnalyzeMatchesWholeWordsOnly(t *testing.T) {
	scores := Analyze("the scrap yard sells classic dickens novels")
	if scores.Toxicity() != 0 {
		t.Fatalf("expected substring false positives to be ignored, got %f", scores.Toxicity())
	}
}

func TestAnalyzeShoutingBoostsToxic(t *testing.T) {
	calm := Analyze("shut up")
	loud := Analyze("SHUT UP!!!")
	if loud[Toxic] <= calm[Toxic] {
		t.Fatalf("expected boost, calm=%f loud=%f", calm[Toxic], loud[Toxic])
	}
	if loud.Toxicity() > 1 {
		t.Fatalf("score out of range: %f", loud.Toxicity())
	}
}

func TestFromMapIgnoresUnknownAndClamps(t *testing.T) {
	scores := FromMap(map[string]float64{"toxic": 1.4, "Insult": 0.2, "spam": 0.9})
	if scores[Toxic] != 1 {
		t.Fatalf("expected clamp to 1, got %f", scores[Toxic])
	}
	if scores[Insult] != 0.2 {
		t.Fatalf("expected insult 0.2, got %f", scores[Insult])
	}
	if _, ok := scores["spam"]; ok {
		t.Fatal("unknown label should be dropped")
	}
}

func TestSortedLabels(t *testing.T) {
	labels := SortedLabels(Scores{Toxic: 0.2, Threat: 0.9, Insult: 0.2})
	if labels[0] != Threat {
		t.Fatalf("expected threat first, got %v", labels)
	}
	if labels[1] != Insult || labels[2] != Toxic {
		t.Fatalf("expected ties broken by name, got %v", labels)
	}
}

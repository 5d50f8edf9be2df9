// Package classify annotates opportunity records with research-relevance
// signals: a deductive match against curated phrases and an inductive RAKE
// extraction of key terms. Every function here is pure.
package classify

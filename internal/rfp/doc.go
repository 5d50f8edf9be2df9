// Package rfp holds the shared vocabulary of the ingestion pipeline: the
// normalized Opportunity Record, the source adapter contract, the typed error
// taxonomy, and the interfaces implemented by storage, hashing, clocks and
// publishers. Concrete implementations live in sibling packages.
package rfp

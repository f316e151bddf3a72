// Package strategy holds the agent variants: whale watcher, yield
// optimizer, airdrop hunter and wallet guardian.
package strategy

import "github.com/ssd-technologies/spawner/internal/agent"

// Factories returns the factories of every built-in variant.
func Factories() []agent.Factory {
	return []agent.Factory{
		WhaleFactory(),
		YieldFactory(),
		AirdropFactory(),
		GuardianFactory(),
	}
}

// Catalog returns a catalog holding every built-in variant.
func Catalog() *agent.Catalog {
	c, err := agent.NewCatalog(Factories()...)
	if err != nil {
		panic(err)
	}
	return c
}

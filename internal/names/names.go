// Package names generates display names and ids for guests who join without one.
package names

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

var adjectives = []string{
	"Brave", "Swift", "Clever", "Mighty", "Gentle", "Bold", "Wise", "Noble",
	"Fierce", "Quick", "Strong", "Bright", "Silent", "Proud", "Wild", "Free",
	"Ancient", "Cosmic", "Electric", "Golden", "Silver", "Crimson", "Azure",
	"Emerald", "Violet", "Radiant", "Mystical", "Legendary", "Epic", "Divine",
}

var animals = []string{
	"Lion", "Eagle", "Fox", "Wolf", "Bear", "Hawk", "Tiger", "Panther",
	"Dragon", "Phoenix", "Falcon", "Shark", "Leopard", "Cheetah", "Raven",
	"Owl", "Deer", "Buffalo", "Stallion", "Jaguar", "Lynx", "Cobra",
	"Viper", "Rhino", "Elephant", "Whale", "Dolphin", "Octopus", "Kraken",
	"Griffin", "Pegasus", "Unicorn", "Sphinx", "Chimera", "Hydra",
}

// Random returns an "Adjective Animal" display name.
func Random() string {
	return adjectives[rand.IntN(len(adjectives))] + " " + animals[rand.IntN(len(animals))]
}

// UserID returns a short 8-character id.
func UserID() string {
	return uuid.NewString()[:8]
}

package presence

import "math/rand"

// Word lists for fallback nicknames. Clients normally generate and persist
// their own, but a join with an empty nickname must still produce a readable
// roster entry.
var (
	adjectives = []string{
		"Amber", "Bold", "Brave", "Bright", "Calm", "Clever", "Crimson",
		"Curious", "Eager", "Gentle", "Golden", "Happy", "Indigo", "Jolly",
		"Keen", "Lively", "Mellow", "Nimble", "Olive", "Patient", "Quick",
		"Quiet", "Rapid", "Scarlet", "Silent", "Silver", "Swift", "Teal",
		"Violet", "Witty",
	}
	animals = []string{
		"Albatross", "Badger", "Bison", "Caribou", "Dolphin", "Falcon",
		"Fox", "Gazelle", "Heron", "Ibis", "Jackal", "Koala", "Lemur",
		"Lynx", "Marmot", "Narwhal", "Ocelot", "Otter", "Panda", "Pelican",
		"Puffin", "Quail", "Raven", "Salamander", "Tapir", "Toucan",
		"Viper", "Walrus", "Wombat", "Zebra",
	}
)

// GenerateNickname returns an adjective-animal display name like
// "Swift Otter".
func GenerateNickname() string {
	return adjectives[rand.Intn(len(adjectives))] + " " + animals[rand.Intn(len(animals))]
}

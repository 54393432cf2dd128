// Agent spawning. The initial population follows a fixed class
// pyramid; later births always enter as peasants.
package agents

import (
	"fmt"
	"math/rand"

	"github.com/tarrenhall/ashgrove/internal/sim"
)

// classDistribution is the starting population pyramid, 100 agents in
// total.
var classDistribution = []struct {
	class Class
	count int
}{
	{King, 1},
	{Noble, 3},
	{Knight, 5},
	{Merchant, 8},
	{Burgher, 10},
	{Cleric, 8},
	{Soldier, 15},
	{Peasant, 50},
}

var givenNames = []string{
	"Aldric", "Bertha", "Cedric", "Dunstan", "Edith", "Folcard", "Gisela",
	"Hamon", "Isolde", "Jocelyn", "Kenric", "Leofwin", "Mabel", "Norbert",
	"Oswyn", "Petra", "Quentin", "Rowena", "Sighard", "Theda", "Ulric",
	"Verena", "Wystan", "Ysabel",
}

// Spawner creates agents with seeded randomness so runs reproduce.
type Spawner struct {
	rng *rand.Rand
}

// NewSpawner returns a spawner over the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{rng: rand.New(rand.NewSource(seed + 300))}
}

// SpawnPopulation creates the full starting population scattered
// within spread of the given center. Wallets follow class.
func (s *Spawner) SpawnPopulation(center sim.Position, spread float64) []Agent {
	var out []Agent
	for _, d := range classDistribution {
		for i := 0; i < d.count; i++ {
			out = append(out, s.spawnOne(d.class, center, spread))
		}
	}
	return out
}

// SpawnPeasant creates a single newborn peasant, used for births.
func (s *Spawner) SpawnPeasant(center sim.Position, spread float64) Agent {
	return s.spawnOne(Peasant, center, spread)
}

func (s *Spawner) spawnOne(class Class, center sim.Position, spread float64) Agent {
	pos := sim.Pos(
		center.X+(s.rng.Float64()*2-1)*spread,
		center.Z+(s.rng.Float64()*2-1)*spread,
	)
	name := fmt.Sprintf("%s of Ashgrove", givenNames[s.rng.Intn(len(givenNames))])
	return Agent{
		ID:        sim.NewAgentID(),
		Name:      name,
		Class:     class,
		Job:       Unemployed,
		State:     Idle,
		Position:  pos,
		Speed:     1.0 + s.rng.Float64()*0.5,
		Wallet:    Wallet{Balance: class.StartingBalance(), TotalEarned: class.StartingBalance()},
		Inventory: make(map[sim.Resource]int),
		Alive:     true,
	}
}

package economy

import (
	"fmt"
	"sort"
)

const (
	GameMiniGame  = "mini_game"
	GameCoinFlip  = "coin_flip"
	GameBlackjack = "blackjack"
)

// Game is a random-outcome payout rule. Faces[0] is the winning face; a game
// with AlwaysPays pays on either face.
type Game struct {
	Name       string
	Faces      [2]string
	AlwaysPays bool
	MinMicros  int64
	MaxMicros  int64
}

var games = map[string]Game{
	GameMiniGame: {
		Name:      GameMiniGame,
		Faces:     [2]string{"win", "lose"},
		MinMicros: 50 * MicrosPerCoin,
		MaxMicros: 200 * MicrosPerCoin,
	},
	GameCoinFlip: {
		Name:       GameCoinFlip,
		Faces:      [2]string{"heads", "tails"},
		AlwaysPays: true,
		MinMicros:  50 * MicrosPerCoin,
		MaxMicros:  200 * MicrosPerCoin,
	},
	GameBlackjack: {
		Name:      GameBlackjack,
		Faces:     [2]string{"win", "lose"},
		MinMicros: 100 * MicrosPerCoin,
		MaxMicros: 300 * MicrosPerCoin,
	},
}

func LookupGame(name string) (Game, error) {
	g, ok := games[NormalizeName(name)]
	if !ok {
		return Game{}, fmt.Errorf("%w: %s", ErrUnknownGame, name)
	}
	return g, nil
}

func GameNames() []string {
	out := make([]string, 0, len(games))
	for name := range games {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type GameResult struct {
	Game          string `json:"game"`
	Face          string `json:"face"`
	Won           bool   `json:"won"`
	PayoutMicros  int64  `json:"payout_micros"`
	BalanceMicros int64  `json:"balance_micros"`
}

func (g Game) roll(faceRoll int, draw func(lo, hi int64) int64) GameResult {
	face := g.Faces[faceRoll&1]
	res := GameResult{Game: g.Name, Face: face}
	res.Won = g.AlwaysPays || face == g.Faces[0]
	if res.Won {
		res.PayoutMicros = draw(g.MinMicros, g.MaxMicros)
	}
	return res
}

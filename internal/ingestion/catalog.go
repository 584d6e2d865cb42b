package ingestion

// DefaultIMDbIDs is the starter catalog loaded when a request names no ids.
var DefaultIMDbIDs = []string{
	"tt0111161", // The Shawshank Redemption
	"tt0068646", // The Godfather
	"tt0071562", // The Godfather Part II
	"tt0468569", // The Dark Knight
	"tt0050083", // 12 Angry Men
	"tt0108052", // Schindler's List
	"tt0167260", // The Lord of the Rings: The Return of the King
	"tt0110912", // Pulp Fiction
	"tt0060196", // The Good, the Bad and the Ugly
	"tt0109830", // Forrest Gump
	"tt0120737", // The Lord of the Rings: The Fellowship of the Ring
	"tt0137523", // Fight Club
	"tt0080684", // The Empire Strikes Back
	"tt1375666", // Inception
	"tt0133093", // The Matrix
	"tt0099685", // Goodfellas
	"tt0114369", // Se7en
	"tt0102926", // The Silence of the Lambs
	"tt0076759", // Star Wars
	"tt0245429", // Spirited Away
	"tt0816692", // Interstellar
	"tt0114814", // The Usual Suspects
	"tt0110357", // The Lion King
	"tt0088763", // Back to the Future
	"tt0114709", // Toy Story
	"tt0172495", // Gladiator
	"tt0209144", // Memento
	"tt0482571", // The Prestige
	"tt0078748", // Alien
	"tt0062622", // 2001: A Space Odyssey
}

package catalog

// ReliableModelIDs are ids that usually serve inference on the free tier.
var ReliableModelIDs = []string{
	"runwayml/stable-diffusion-v1-5",
	"stabilityai/stable-diffusion-xl-base-1.0",
	"prompthero/openjourney",
}

// ReliableFallback is inserted when the user asks for a reliable model that
// the catalog doesn't hold.
var ReliableFallback = Model{
	ID:          "runwayml/stable-diffusion-v1-5",
	Name:        "Stable Diffusion v1.5",
	Description: "Standard text-to-image model (reliable)",
}

// Suggest returns the index of fallback.ID, appending fallback when the
// catalog doesn't hold it yet. The caller selects the returned index.
func Suggest(c *Catalog, fallback Model) (index int, inserted bool) {
	fallback.Status = StatusUnknown
	return c.IndexOrAppend(fallback)
}

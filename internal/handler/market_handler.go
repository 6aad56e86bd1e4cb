package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/campus-market/internal/domain"
	"github.com/arturoeanton/campus-market/internal/middleware"
	"github.com/arturoeanton/campus-market/internal/service"
)

// MarketHandler serves the catalog, favorites, chats, purchase requests
// and the local profile. Every route requires a signed-in session.
type MarketHandler struct {
	market    *service.MarketService
	responder *service.Responder
}

// NewMarketHandler creates a new market handler. A nil responder posts
// chat messages without a simulated reply.
func NewMarketHandler(market *service.MarketService, responder *service.Responder) *MarketHandler {
	return &MarketHandler{market: market, responder: responder}
}

// Register sets up marketplace routes behind gate.
func (h *MarketHandler) Register(router fiber.Router, gate fiber.Handler) {
	products := router.Group("/api/products", gate)
	products.Get("/", h.ListProducts)
	products.Post("/", h.CreateProduct)
	products.Get("/mine", h.MyProducts)
	products.Get("/:id", h.GetProduct)
	products.Patch("/:id/status", h.UpdateProductStatus)

	favorites := router.Group("/api/favorites", gate)
	favorites.Get("/", h.ListFavorites)
	favorites.Post("/:productId", h.ToggleFavorite)

	chats := router.Group("/api/chats", gate)
	chats.Get("/", h.ListChats)
	chats.Post("/", h.OpenChat)
	chats.Get("/:id", h.GetChat)
	chats.Post("/:id/messages", h.SendMessage)

	requests := router.Group("/api/purchase-requests", gate)
	requests.Get("/", h.ListPurchaseRequests)
	requests.Post("/", h.CreatePurchaseRequest)
	requests.Patch("/:id", h.UpdatePurchaseRequest)

	profile := router.Group("/api/profile", gate)
	profile.Get("/", h.GetProfile)
	profile.Patch("/", h.UpdateProfile)
}

// --- Products ---

// ListProducts returns the catalog, optionally filtered by ?q=.
func (h *MarketHandler) ListProducts(c fiber.Ctx) error {
	products := h.market.ListProducts(c.Query("q"))
	return c.JSON(fiber.Map{
		"products": products,
		"count":    len(products),
	})
}

// CreateProduct lists a new item sold by the signed-in user.
func (h *MarketHandler) CreateProduct(c fiber.Ctx) error {
	var in domain.ProductInput
	if err := c.Bind().JSON(&in); err != nil {
		return badRequest(c, "invalid request")
	}
	in.SellerID = middleware.GetIdentity(c).ID

	p, err := h.market.CreateListing(c.Context(), in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

// MyProducts returns the listings of the signed-in user.
func (h *MarketHandler) MyProducts(c fiber.Ctx) error {
	products := h.market.ListProductsBySeller(middleware.GetIdentity(c).ID)
	return c.JSON(fiber.Map{
		"products": products,
		"count":    len(products),
	})
}

// GetProduct returns one product and whether it is a favorite.
func (h *MarketHandler) GetProduct(c fiber.Ctx) error {
	p, ok := h.market.GetProduct(c.Params("id"))
	if !ok {
		return notFound(c, "product")
	}
	return c.JSON(fiber.Map{
		"product":  p,
		"favorite": h.market.IsFavorite(p.ID),
	})
}

// UpdateProductStatus changes the sale status of a product.
func (h *MarketHandler) UpdateProductStatus(c fiber.Ctx) error {
	var body struct {
		Status domain.ProductStatus `json:"status"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request")
	}

	productID := c.Params("id")
	if _, ok := h.market.GetProduct(productID); !ok {
		return notFound(c, "product")
	}
	if err := h.market.UpdateProductStatus(c.Context(), productID, body.Status); err != nil {
		return fail(c, err)
	}

	p, _ := h.market.GetProduct(productID)
	return c.JSON(p)
}

// --- Favorites ---

// ListFavorites returns the favorite ids and the products still listed.
func (h *MarketHandler) ListFavorites(c fiber.Ctx) error {
	ids := h.market.Favorites()
	products := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := h.market.GetProduct(id); ok {
			products = append(products, p)
		}
	}
	return c.JSON(fiber.Map{
		"favorites": ids,
		"products":  products,
	})
}

// ToggleFavorite flips the favorite flag of a product.
func (h *MarketHandler) ToggleFavorite(c fiber.Ctx) error {
	productID := c.Params("productId")
	favorite, err := h.market.ToggleFavorite(c.Context(), productID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"productId": productID,
		"favorite":  favorite,
	})
}

// --- Chats ---

// ListChats returns the chats of the signed-in user.
func (h *MarketHandler) ListChats(c fiber.Ctx) error {
	chats := h.market.ListChats(middleware.GetIdentity(c).ID)
	return c.JSON(fiber.Map{
		"chats": chats,
		"count": len(chats),
	})
}

// OpenChat returns the chat about a product with its seller, creating it
// on first contact.
func (h *MarketHandler) OpenChat(c fiber.Ctx) error {
	var body struct {
		ProductID string `json:"productId"`
		SellerID  string `json:"sellerId"`
	}
	if err := c.Bind().JSON(&body); err != nil || body.ProductID == "" {
		return badRequest(c, "productId is required")
	}

	sellerID := body.SellerID
	if sellerID == "" {
		p, ok := h.market.GetProduct(body.ProductID)
		if !ok {
			return notFound(c, "product")
		}
		sellerID = p.SellerID
	}

	me := middleware.GetIdentity(c).ID
	if sellerID == me {
		return badRequest(c, "cannot open a chat with yourself")
	}

	chat, err := h.market.AddChatIfMissing(c.Context(), body.ProductID, []string{me, sellerID})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(chat)
}

// GetChat returns a chat with its messages.
func (h *MarketHandler) GetChat(c fiber.Ctx) error {
	chat, ok := h.market.GetChat(c.Params("id"))
	if !ok {
		return notFound(c, "chat")
	}
	return c.JSON(chat)
}

// SendMessage posts a message from the signed-in user.
func (h *MarketHandler) SendMessage(c fiber.Ctx) error {
	var body struct {
		Text string `json:"text"`
	}
	if err := c.Bind().JSON(&body); err != nil || body.Text == "" {
		return badRequest(c, "text is required")
	}

	chatID := c.Params("id")
	from := middleware.GetIdentity(c).ID

	var (
		msg *domain.Message
		err error
	)
	if h.responder != nil {
		msg, err = h.responder.Send(c.Context(), chatID, from, body.Text)
	} else {
		msg, err = h.market.PushMessage(c.Context(), chatID, from, body.Text)
	}
	if err != nil {
		return fail(c, err)
	}
	if msg == nil {
		return notFound(c, "chat")
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// --- Purchase requests ---

// ListPurchaseRequests returns the requests the signed-in user is part of.
func (h *MarketHandler) ListPurchaseRequests(c fiber.Ctx) error {
	requests := h.market.ListPurchaseRequests(middleware.GetIdentity(c).ID)
	return c.JSON(fiber.Map{
		"requests": requests,
		"count":    len(requests),
	})
}

// CreatePurchaseRequest asks the seller of a product to sell it.
func (h *MarketHandler) CreatePurchaseRequest(c fiber.Ctx) error {
	var body struct {
		ProductID string `json:"productId"`
	}
	if err := c.Bind().JSON(&body); err != nil || body.ProductID == "" {
		return badRequest(c, "productId is required")
	}

	p, ok := h.market.GetProduct(body.ProductID)
	if !ok {
		return notFound(c, "product")
	}
	if p.Status == domain.ProductSold {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "product already sold"})
	}

	r, err := h.market.CreatePurchaseRequest(c.Context(), p.ID, middleware.GetIdentity(c).ID, p.SellerID)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

// UpdatePurchaseRequest accepts or declines a request.
func (h *MarketHandler) UpdatePurchaseRequest(c fiber.Ctx) error {
	var body struct {
		Status domain.RequestStatus `json:"status"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request")
	}

	requestID := c.Params("id")
	if _, ok := h.market.GetPurchaseRequest(requestID); !ok {
		return notFound(c, "purchase request")
	}
	if err := h.market.UpdatePurchaseRequest(c.Context(), requestID, body.Status); err != nil {
		return fail(c, err)
	}

	r, _ := h.market.GetPurchaseRequest(requestID)
	return c.JSON(r)
}

// --- Profile ---

// GetProfile returns the local profile.
func (h *MarketHandler) GetProfile(c fiber.Ctx) error {
	p, ok := h.market.Profile()
	if !ok {
		return notFound(c, "profile")
	}
	return c.JSON(p)
}

// UpdateProfile merges the supplied fields into the local profile.
func (h *MarketHandler) UpdateProfile(c fiber.Ctx) error {
	var patch domain.ProfilePatch
	if err := c.Bind().JSON(&patch); err != nil {
		return badRequest(c, "invalid request")
	}

	p, err := h.market.UpdateProfile(c.Context(), patch)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}

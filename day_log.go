package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var (
	errMealNotFound = errors.New("meal not found")
	errItemNotFound = errors.New("item not found")
)

// dateParam validates the :date path parameter. Writes a 400 and returns
// ok=false when it is not YYYY-MM-DD.
func dateParam(c *gin.Context) (string, bool) {
	date := c.Param("date")
	if !validDate(date) {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return "", false
	}
	return date, true
}

// respondDay writes the day view model for rec.
func (h *Handler) respondDay(c *gin.Context, status int, rec dayRecord) {
	c.JSON(status, h.stats.Summary(c, rec, string(h.store.State(rec.Date))))
}

func findMeal(rec *dayRecord, id string) (*meal, error) {
	for i := range rec.Meals {
		if rec.Meals[i].ID == id {
			return &rec.Meals[i], nil
		}
	}
	return nil, errMealNotFound
}

func findItem(m *meal, id string) (*mealItem, error) {
	for i := range m.Items {
		if m.Items[i].ID == id {
			return &m.Items[i], nil
		}
	}
	return nil, errItemNotFound
}

// mutationError maps updater errors onto HTTP responses.
func mutationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errMealNotFound), errors.Is(err, errItemNotFound):
		apiError(c, http.StatusNotFound, err.Error())
	default:
		apiError(c, http.StatusInternalServerError, "failed to update day")
	}
}

func validRating(v *float64) bool {
	return v == nil || (*v >= 0 && *v <= 10)
}

/* ─── Day ────────────────────────────────────────────────────────────── */

// getDay switches the viewed date and returns its summary.
// GET /api/day/:date. The previously viewed date is flushed first.
func (h *Handler) getDay(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	h.respondDay(c, http.StatusOK, h.store.Open(date))
}

// patchDay updates day-level scalars. Only non-nil fields are written.
// PATCH /api/day/:date.
func (h *Handler) patchDay(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	var body patchDayRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.CycleDay != nil && (*body.CycleDay < 1 || *body.CycleDay > 35) {
		apiError(c, http.StatusBadRequest, "cycleDay must be between 1 and 35")
		return
	}
	if body.DeficitPct != nil && (*body.DeficitPct < minDeficitPct || *body.DeficitPct > maxDeficitPct) {
		apiError(c, http.StatusBadRequest, "deficitPct must be between -50 and 50")
		return
	}
	for _, t := range []*string{body.SleepStart, body.SleepEnd} {
		if t != nil && *t != "" {
			if _, ok := parseClock(*t); !ok {
				apiError(c, http.StatusBadRequest, "sleep times must be HH:MM")
				return
			}
		}
	}
	if !validRating(body.SleepQuality) || !validRating(body.DayScore) {
		apiError(c, http.StatusBadRequest, "ratings must be between 0 and 10")
		return
	}

	rec, err := h.store.Mutate(date, func(r *dayRecord) error {
		if body.Steps != nil {
			r.Steps = body.Steps
		}
		if body.WaterMl != nil {
			r.WaterMl = body.WaterMl
		}
		if body.WeightMorning != nil {
			r.WeightMorning = body.WeightMorning
		}
		if body.HouseholdMin != nil {
			r.HouseholdMin = body.HouseholdMin
		}
		if body.SleepStart != nil {
			r.SleepStart = body.SleepStart
		}
		if body.SleepEnd != nil {
			r.SleepEnd = body.SleepEnd
		}
		if body.SleepQuality != nil {
			r.SleepQuality = body.SleepQuality
		}
		if body.DayScore != nil {
			r.DayScore = body.DayScore
		}
		if body.CycleDay != nil {
			r.CycleDay = body.CycleDay
		}
		if body.IsRefeedDay != nil {
			r.IsRefeedDay = *body.IsRefeedDay
		}
		if body.IsFastingDay != nil {
			r.IsFastingDay = *body.IsFastingDay
		}
		if body.IsIncomplete != nil {
			r.IsIncomplete = *body.IsIncomplete
		}
		if body.DeficitPct != nil {
			r.DeficitPct = body.DeficitPct
		}
		return nil
	})
	if err != nil {
		mutationError(c, err)
		return
	}
	h.respondDay(c, http.StatusOK, rec)
}

// clearDay resets the day to the empty template. DELETE /api/day/:date.
func (h *Handler) clearDay(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	h.respondDay(c, http.StatusOK, h.store.ClearDay(date))
}

// addWater adds (or with a negative value, removes) water in ml.
// POST /api/day/:date/water. Body: { "ml": 250 }.
func (h *Handler) addWater(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	var body struct {
		Ml int `json:"ml"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Ml == 0 {
		apiError(c, http.StatusBadRequest, "ml must be a non-zero integer")
		return
	}
	rec, err := h.store.Mutate(date, func(r *dayRecord) error {
		water := body.Ml
		if r.WaterMl != nil {
			water += *r.WaterMl
		}
		water = max(water, 0)
		r.WaterMl = &water
		return nil
	})
	if err != nil {
		mutationError(c, err)
		return
	}
	h.respondDay(c, http.StatusOK, rec)
}

/* ─── Meals ──────────────────────────────────────────────────────────── */

// createMeal appends an empty meal. POST /api/day/:date/meals.
func (h *Handler) createMeal(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	var body createMealRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := parseClock(body.Time); !ok {
		apiError(c, http.StatusBadRequest, "time must be HH:MM (hours up to 26)")
		return
	}
	if !validRating(body.Mood) || !validRating(body.Wellbeing) || !validRating(body.Stress) {
		apiError(c, http.StatusBadRequest, "ratings must be between 0 and 10")
		return
	}

	m := meal{
		ID:        uuid.NewString(),
		Time:      body.Time,
		MealType:  body.MealType,
		Items:     []mealItem{},
		Mood:      body.Mood,
		Wellbeing: body.Wellbeing,
		Stress:    body.Stress,
	}
	if _, err := h.store.Mutate(date, func(r *dayRecord) error {
		r.Meals = append(r.Meals, m)
		return nil
	}); err != nil {
		mutationError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// deleteMeal removes a meal. DELETE /api/day/:date/meals/:mealID.
func (h *Handler) deleteMeal(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	id := c.Param("mealID")
	_, err := h.store.Mutate(date, func(r *dayRecord) error {
		for i := range r.Meals {
			if r.Meals[i].ID == id {
				r.Meals = append(r.Meals[:i], r.Meals[i+1:]...)
				return nil
			}
		}
		return errMealNotFound
	})
	if err != nil {
		mutationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// addMealItem adds a product portion to a meal, snapshotting the product's
// nutrients. POST /api/day/:date/meals/:mealID/items.
func (h *Handler) addMealItem(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	var body addItemRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ProductID == "" {
		apiError(c, http.StatusBadRequest, "product_id is required")
		return
	}
	if body.Grams <= 0 || body.Grams > 5000 {
		apiError(c, http.StatusBadRequest, "grams must be between 0 and 5000")
		return
	}
	// Catalog lookup happens before Mutate: no I/O under the store lock.
	p, err := h.catalog.Lookup(c, body.ProductID)
	if errors.Is(err, errProductNotFound) {
		apiError(c, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to look up product")
		return
	}

	item := snapshotItem(mealItem{ID: uuid.NewString(), Grams: body.Grams}, p)
	mealID := c.Param("mealID")
	if _, err := h.store.Mutate(date, func(r *dayRecord) error {
		m, err := findMeal(r, mealID)
		if err != nil {
			return err
		}
		m.Items = append(m.Items, item)
		return nil
	}); err != nil {
		mutationError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// updateMealItem changes an item's portion or swaps its product.
// PUT /api/day/:date/meals/:mealID/items/:itemID. Grams alone never touches
// the nutrient snapshot; a product swap re-snapshots and keeps the grams.
func (h *Handler) updateMealItem(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	var body updateItemRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Grams == nil && body.ProductID == nil {
		apiError(c, http.StatusBadRequest, "no fields to update")
		return
	}
	if body.Grams != nil && (*body.Grams <= 0 || *body.Grams > 5000) {
		apiError(c, http.StatusBadRequest, "grams must be between 0 and 5000")
		return
	}
	var swap *product
	if body.ProductID != nil {
		p, err := h.catalog.Lookup(c, *body.ProductID)
		if errors.Is(err, errProductNotFound) {
			apiError(c, http.StatusNotFound, "product not found")
			return
		}
		if err != nil {
			apiError(c, http.StatusInternalServerError, "failed to look up product")
			return
		}
		swap = &p
	}

	mealID, itemID := c.Param("mealID"), c.Param("itemID")
	var updated mealItem
	if _, err := h.store.Mutate(date, func(r *dayRecord) error {
		m, err := findMeal(r, mealID)
		if err != nil {
			return err
		}
		it, err := findItem(m, itemID)
		if err != nil {
			return err
		}
		if swap != nil {
			*it = snapshotItem(*it, *swap)
		}
		if body.Grams != nil {
			it.Grams = *body.Grams
		}
		updated = *it
		return nil
	}); err != nil {
		mutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// deleteMealItem removes one item. DELETE .../meals/:mealID/items/:itemID.
func (h *Handler) deleteMealItem(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	mealID, itemID := c.Param("mealID"), c.Param("itemID")
	_, err := h.store.Mutate(date, func(r *dayRecord) error {
		m, err := findMeal(r, mealID)
		if err != nil {
			return err
		}
		for i := range m.Items {
			if m.Items[i].ID == itemID {
				m.Items = append(m.Items[:i], m.Items[i+1:]...)
				return nil
			}
		}
		return errItemNotFound
	})
	if err != nil {
		mutationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

/* ─── Trainings ──────────────────────────────────────────────────────── */

// putTraining replaces one training slot. PUT /api/day/:date/trainings/:slot.
func (h *Handler) putTraining(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil || slot < 0 || slot >= maxTrainings {
		apiError(c, http.StatusBadRequest, "slot must be 0, 1 or 2")
		return
	}
	var body training
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validTrainingTypes[body.Type] {
		apiError(c, http.StatusBadRequest, "type must be one of: cardio, strength, hobby")
		return
	}
	for _, z := range body.Z {
		if z < 0 || z > 600 {
			apiError(c, http.StatusBadRequest, "zone minutes must be between 0 and 600")
			return
		}
	}
	if body.Time != "" {
		if _, ok := parseClock(body.Time); !ok {
			apiError(c, http.StatusBadRequest, "time must be HH:MM")
			return
		}
	}
	if body.ID == "" && body.Type != "" {
		body.ID = uuid.NewString()
	}

	rec, err := h.store.Mutate(date, func(r *dayRecord) error {
		r.Trainings[slot] = body
		return nil
	})
	if err != nil {
		mutationError(c, err)
		return
	}
	h.respondDay(c, http.StatusOK, rec)
}

/* ─── Persistence & sync ─────────────────────────────────────────────── */

// flushDay forces an immediate write. POST /api/day/:date/flush.
func (h *Handler) flushDay(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	if err := h.store.Flush(date); err != nil {
		apiError(c, http.StatusInternalServerError, "failed to persist day")
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "save_state": h.store.State(date)})
}

// applyRemoteDay offers a server-side record to the store.
// POST /api/day/:date/remote. The body is read like a persisted value, so
// legacy shapes are migrated. Stale payloads are dropped, not errors.
func (h *Handler) applyRemoteDay(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	body, err := decodeDay(date, raw)
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	applied := h.store.ApplyRemote(date, body)
	c.JSON(http.StatusOK, gin.H{"date": date, "applied": applied})
}

// pullRemote is pull-to-refresh. POST /api/sync/pull.
func (h *Handler) pullRemote(c *gin.Context) {
	if h.sync == nil {
		apiError(c, http.StatusServiceUnavailable, "sync not configured")
		return
	}
	n, err := h.sync.Pull(c)
	if err != nil {
		apiError(c, http.StatusBadGateway, "failed to pull remote days")
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": n})
}

/* ─── Derived statistics ─────────────────────────────────────────────── */

// getInsulinWave returns the wave for the latest meal of the day.
// GET /api/day/:date/insulin-wave.
func (h *Handler) getInsulinWave(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	wave, ok := h.stats.InsulinWave(c, h.store.Load(date))
	if !ok {
		apiError(c, http.StatusNotFound, "no meals with items")
		return
	}
	c.JSON(http.StatusOK, wave)
}

// getSeries returns the sparkline series. GET /api/stats/series?period=7|14|30.
func (h *Handler) getSeries(c *gin.Context) {
	period, err := strconv.Atoi(c.DefaultQuery("period", "7"))
	if err != nil || !validPeriods[period] {
		apiError(c, http.StatusBadRequest, "period must be one of: 7, 14, 30")
		return
	}
	c.JSON(http.StatusOK, h.stats.Series(c, period))
}

// getBalance returns the weekly calorie balance and caloric debt.
// GET /api/stats/balance?date=YYYY-MM-DD (defaults to today).
func (h *Handler) getBalance(c *gin.Context) {
	date := c.DefaultQuery("date", h.stats.today())
	if !validDate(date) {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	c.JSON(http.StatusOK, h.stats.Balance(c, date))
}

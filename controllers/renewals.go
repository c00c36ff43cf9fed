package controllers

import (
	"jpjportal_go/middleware"
	"jpjportal_go/services"
	"jpjportal_go/services/fees"
	"jpjportal_go/services/workflow"

	"github.com/gofiber/fiber/v2"
)

type RenewalController struct {
	renewals *services.RenewalService
}

func NewRenewalController(renewals *services.RenewalService) *RenewalController {
	return &RenewalController{renewals: renewals}
}

// renewalKinds maps the URL segment to the renewal kind.
var renewalKinds = map[string]string{
	"road-tax": services.RenewalRoadTax,
	"license":  services.RenewalLicense,
}

func urlKind(kind string) string {
	for seg, k := range renewalKinds {
		if k == kind {
			return seg
		}
	}
	return kind
}

func paymentPath(kind string, st *workflow.State) string {
	return "/portal/renewals/" + urlKind(kind) + "/pay/" + st.Token
}

func paymentView(kind string, st *workflow.State) fiber.Map {
	return fiber.Map{
		"token":          st.Token,
		"kind":           kind,
		"natural_key":    st.Get("natural_key"),
		"amount":         st.Get("amount"),
		"transaction_id": st.Get("transaction_id"),
		"expires_at":     st.ExpiresAt,
	}
}

// Index shows the user's vehicles and licenses with the renewal forms.
func (rc *RenewalController) Index(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	ctx := c.UserContext()
	vehicles, err := rc.renewals.Vehicles(ctx, userID)
	if err != nil {
		return fail(c, err, "/portal")
	}
	licenses, err := rc.renewals.Licenses(ctx, userID)
	if err != nil {
		return fail(c, err, "/portal")
	}
	if middleware.WantsHTML(c) {
		return render(c, "portal/renewals", fiber.Map{
			"Title":    "Renewals",
			"Vehicles": vehicles,
			"Licenses": licenses,
		})
	}
	return c.JSON(fiber.Map{"vehicles": vehicles, "licenses": licenses})
}

// Quote prices a renewal without recording anything.
func (rc *RenewalController) Quote(c *fiber.Ctx) error {
	switch c.Query("kind") {
	case "road-tax", services.RenewalRoadTax:
		amount, err := fees.RoadTaxAmount(c.QueryInt("engine_cc"), c.QueryInt("months", 12))
		if err != nil {
			return fail(c, services.NewValidationError("engine_cc", err.Error()), "/portal/renewals")
		}
		return c.JSON(fiber.Map{"kind": services.RenewalRoadTax, "amount": amount.StringFixed(2)})
	case services.RenewalLicense:
		amount, err := fees.LicenseRenewalAmount(c.Query("period"))
		if err != nil {
			return fail(c, services.NewValidationError("period", err.Error()), "/portal/renewals")
		}
		return c.JSON(fiber.Map{"kind": services.RenewalLicense, "amount": amount.StringFixed(2)})
	}
	return fail(c, services.NewValidationError("kind", "must be road-tax or license"), "/portal/renewals")
}

func (rc *RenewalController) RegisterVehicle(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	var req services.VehicleInput
	if err := c.BodyParser(&req); err != nil {
		return fail(c, services.NewValidationError("body", "could not be read"), "/portal/renewals")
	}
	vehicle, err := rc.renewals.RegisterVehicle(c.UserContext(), userID, req)
	if err != nil {
		return fail(c, err, "/portal/renewals")
	}
	middleware.LogActivity(c, "CREATE", "vehicles", vehicle.ID, fiber.Map{"vehicle_number": vehicle.VehicleNumber})
	return succeed(c, fiber.StatusCreated, "Vehicle "+vehicle.VehicleNumber+" registered", "/portal/renewals",
		fiber.Map{"vehicle": vehicle})
}

func (rc *RenewalController) RegisterLicense(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	var req services.LicenseInput
	if err := c.BodyParser(&req); err != nil {
		return fail(c, services.NewValidationError("body", "could not be read"), "/portal/renewals")
	}
	license, err := rc.renewals.RegisterLicense(c.UserContext(), userID, req)
	if err != nil {
		return fail(c, err, "/portal/renewals")
	}
	middleware.LogActivity(c, "CREATE", "licenses", license.ID, fiber.Map{"license_number": license.LicenseNumber})
	return succeed(c, fiber.StatusCreated, "License "+license.LicenseNumber+" registered", "/portal/renewals",
		fiber.Map{"license": license})
}

// RequestRoadTax records a pending road-tax renewal and sends the user to pay.
func (rc *RenewalController) RequestRoadTax(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	var req services.RoadTaxRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, services.NewValidationError("body", "could not be read"), "/portal/renewals")
	}
	row, st, err := rc.renewals.RequestRoadTax(c.UserContext(), userID, req)
	if err != nil {
		return fail(c, err, "/portal/renewals")
	}
	middleware.LogActivity(c, "REQUEST", "road_tax_renewals", row.ID, fiber.Map{"vehicle_number": row.VehicleNumber})
	if middleware.WantsHTML(c) {
		return c.Redirect(paymentPath(services.RenewalRoadTax, st))
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"renewal": row, "payment": paymentView(services.RenewalRoadTax, st)})
}

// RequestLicense records a pending license renewal and sends the user to pay.
func (rc *RenewalController) RequestLicense(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	var req services.LicenseRenewalRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, services.NewValidationError("body", "could not be read"), "/portal/renewals")
	}
	row, st, err := rc.renewals.RequestLicense(c.UserContext(), userID, req)
	if err != nil {
		return fail(c, err, "/portal/renewals")
	}
	middleware.LogActivity(c, "REQUEST", "license_renewals", row.ID, fiber.Map{"license_number": row.LicenseNumber})
	if middleware.WantsHTML(c) {
		return c.Redirect(paymentPath(services.RenewalLicense, st))
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"renewal": row, "payment": paymentView(services.RenewalLicense, st)})
}

func kindParam(c *fiber.Ctx) (string, error) {
	kind, ok := renewalKinds[c.Params("kind")]
	if !ok {
		return "", services.ErrNotFound
	}
	return kind, nil
}

// ShowPayment is the simulated payment page.
func (rc *RenewalController) ShowPayment(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	kind, err := kindParam(c)
	if err != nil {
		return fail(c, err, "/portal/renewals")
	}
	st, err := rc.renewals.PaymentState(c.UserContext(), kind, c.Params("token"), userID)
	if err != nil {
		return fail(c, err, "/portal/renewals")
	}
	if middleware.WantsHTML(c) {
		if st.Get("transaction_id") != "" {
			return c.Redirect(paymentPath(kind, st) + "/receipt")
		}
		return render(c, "portal/payment", fiber.Map{
			"Title":   "Payment",
			"Payment": paymentView(kind, st),
			"Action":  paymentPath(kind, st),
		})
	}
	return c.JSON(fiber.Map{"payment": paymentView(kind, st)})
}

// ConfirmPayment marks the renewal as paid.
func (rc *RenewalController) ConfirmPayment(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	kind, err := kindParam(c)
	if err != nil {
		return fail(c, err, "/portal/renewals")
	}
	st, err := rc.renewals.ConfirmPayment(c.UserContext(), kind, c.Params("token"), userID)
	if err != nil {
		return fail(c, err, "/portal/renewals/status")
	}
	middleware.LogActivity(c, "PAY", kind+"_renewals", 0, fiber.Map{
		"natural_key":    st.Get("natural_key"),
		"transaction_id": st.Get("transaction_id"),
	})
	if middleware.WantsHTML(c) {
		return c.Redirect(paymentPath(kind, st) + "/receipt")
	}
	return c.JSON(fiber.Map{"message": "Payment successful", "payment": paymentView(kind, st)})
}

// Receipt is the payment success page.
func (rc *RenewalController) Receipt(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	kind, err := kindParam(c)
	if err != nil {
		return fail(c, err, "/portal/renewals")
	}
	st, err := rc.renewals.PaymentState(c.UserContext(), kind, c.Params("token"), userID)
	if err != nil {
		return fail(c, err, "/portal/renewals/status")
	}
	if st.Get("transaction_id") == "" {
		return c.Redirect(paymentPath(kind, st))
	}
	return render(c, "portal/receipt", fiber.Map{"Title": "Payment successful", "Payment": paymentView(kind, st)})
}

// Status shows paid histories per vehicle and license plus pending renewals.
func (rc *RenewalController) Status(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	status, err := rc.renewals.Status(c.UserContext(), userID)
	if err != nil {
		return fail(c, err, "/portal")
	}
	if middleware.WantsHTML(c) {
		return render(c, "portal/renewal_status", fiber.Map{"Title": "Renewal status", "Status": status})
	}
	return c.JSON(fiber.Map{
		"road_tax": status.RoadTax,
		"licenses": status.Licenses,
		"pending":  status.Pending,
	})
}

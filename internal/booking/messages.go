package booking

import (
	"context"
	"time"

	"github.com/enggsatyamraj/rentify-backend/internal/notification"
	"github.com/enggsatyamraj/rentify-backend/internal/property"
	"github.com/enggsatyamraj/rentify-backend/internal/storage"
	"github.com/enggsatyamraj/rentify-backend/internal/user"
)

var statusKinds = map[Status]notification.Kind{
	StatusConfirmed: notification.BookingConfirmed,
	StatusRejected:  notification.BookingRejected,
	StatusCancelled: notification.BookingCancelled,
	StatusCompleted: notification.BookingCompleted,
}

func (e *engine) link(path string) string {
	return e.frontendURL + path
}

func (e *engine) createdMessages(b *Booking, p *property.Property, tenant, owner *user.User) []notification.Message {
	id := b.ID.String()
	return []notification.Message{
		{
			To:   tenant.Email,
			Kind: notification.BookingConfirmation,
			Payload: map[string]interface{}{
				"first_name":     tenant.FirstName,
				"property_title": p.Title,
				"booking_date":   b.StartDate.Format(time.DateOnly),
				"booking_id":     id,
				"room_count":     b.RoomCount,
				"dashboard_url":  e.link("/dashboard/bookings"),
			},
		},
		{
			To:   owner.Email,
			Kind: notification.NewBookingNotification,
			Payload: map[string]interface{}{
				"first_name":     owner.FirstName,
				"tenant_name":    tenant.FullName(),
				"property_title": p.Title,
				"booking_date":   b.StartDate.Format(time.DateOnly),
				"booking_id":     id,
				"room_count":     b.RoomCount,
				"confirm_url":    e.link("/dashboard/owner/bookings/" + id + "/confirm"),
				"reject_url":     e.link("/dashboard/owner/bookings/" + id + "/reject"),
			},
		},
	}
}

// statusMessages tells the counter-party about a transition. A cancellation
// by the tenant goes to the owner; everything else goes to the tenant.
func (e *engine) statusMessages(ctx context.Context, q storage.Queryer, b *Booking, who party, reason string) ([]notification.Message, error) {
	kind, ok := statusKinds[b.Status]
	if !ok {
		return nil, nil
	}
	recipientID := b.TenantID
	if b.Status == StatusCancelled && who.tenant {
		recipientID = b.OwnerID
	}

	recipient, err := e.users.FindByID(ctx, q, recipientID)
	if err != nil {
		return nil, err
	}
	p, err := e.properties.FindByID(ctx, q, b.PropertyID, false)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"first_name":     recipient.FirstName,
		"property_title": p.Title,
		"booking_id":     b.ID.String(),
		"status":         string(b.Status),
	}
	if b.Cancellation != nil {
		payload["reason"] = reason
	}
	if b.Status == StatusConfirmed {
		payload["move_in_date"] = b.MoveIn.ScheduledDate.Format(time.DateOnly)
	}
	return []notification.Message{{To: recipient.Email, Kind: kind, Payload: payload}}, nil
}

// contractMessages announces a new document to the tenant and a completed
// signature to both parties.
func (e *engine) contractMessages(ctx context.Context, q storage.Queryer, b *Booking, documentAdded, signedNow bool) ([]notification.Message, error) {
	if !documentAdded && !signedNow {
		return nil, nil
	}
	tenant, err := e.users.FindByID(ctx, q, b.TenantID)
	if err != nil {
		return nil, err
	}
	owner, err := e.users.FindByID(ctx, q, b.OwnerID)
	if err != nil {
		return nil, err
	}
	p, err := e.properties.FindByID(ctx, q, b.PropertyID, false)
	if err != nil {
		return nil, err
	}

	id := b.ID.String()
	var msgs []notification.Message
	if documentAdded {
		end := ""
		if b.EndDate != nil {
			end = b.EndDate.Format(time.DateOnly)
		}
		msgs = append(msgs, notification.Message{
			To:   tenant.Email,
			Kind: notification.ContractReady,
			Payload: map[string]interface{}{
				"first_name":     tenant.FirstName,
				"property_title": p.Title,
				"booking_id":     id,
				"start_date":     b.StartDate.Format(time.DateOnly),
				"end_date":       end,
				"contract_url":   e.link("/dashboard/bookings/" + id + "/contract"),
			},
		})
	}
	if signedNow {
		for _, r := range []struct {
			u    *user.User
			path string
		}{
			{tenant, "/dashboard/bookings/" + id},
			{owner, "/dashboard/owner/bookings/" + id},
		} {
			msgs = append(msgs, notification.Message{
				To:   r.u.Email,
				Kind: notification.BookingUpdated,
				Payload: map[string]interface{}{
					"first_name":       r.u.FirstName,
					"property_title":   p.Title,
					"booking_id":       id,
					"update_type":      "Contract signed by both parties",
					"view_details_url": e.link(r.path),
				},
			})
		}
	}
	return msgs, nil
}

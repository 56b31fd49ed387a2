package listing

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/grabbit/grabbit/internal/model"
)

// exportMaxRows は1回のエクスポートで出力する最大行数。
const exportMaxRows = 1000

// exportHeader はCSVのヘッダ行。
var exportHeader = []string{
	"title", "url", "current_price", "original_price", "price_dropped",
	"year", "mileage", "make", "model", "location", "platform", "notes", "saved_at",
}

// ExportCSV はユーザーのアクティブなリスティングをCSV形式で書き出す。
// エクスポートはProプラン限定の機能。出力は保存日時の降順で最大1000件。
func (s *Service) ExportCSV(ctx context.Context, userID string, w io.Writer) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}
	if !model.LimitsForTier(user.SubscriptionTier).CanExport {
		return model.NewUpgradeRequiredError("CSVエクスポート")
	}

	listings, _, err := s.listingRepo.ListByUser(ctx, userID, model.ListingQuery{
		Sort:       model.ListingSortSavedAt,
		Descending: true,
		Limit:      exportMaxRows,
	})
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return err
	}

	for _, listing := range listings {
		if err := writer.Write(exportRow(listing)); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// exportRow はリスティング1件をCSVの1行に変換する。
// nil可能な数値フィールドは空欄として出力する。
func exportRow(listing *model.Listing) []string {
	return []string{
		listing.Title,
		listing.URL,
		fmt.Sprintf("%d", listing.CurrentPrice),
		optionalInt64(listing.OriginalPrice),
		fmt.Sprintf("%t", listing.PriceDropped),
		optionalInt(listing.Year),
		optionalInt(listing.Mileage),
		listing.Make,
		listing.Model,
		listing.Location,
		string(listing.Platform),
		listing.Notes,
		listing.SavedAt.Format(time.RFC3339),
	}
}

func optionalInt64(v *int64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}

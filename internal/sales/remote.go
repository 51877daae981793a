package sales

import (
	"context"
	"fmt"
)

// ApplyRemote writes a transaction to the remote store: the sale header first,
// then for each item its sale line followed by the product stock update. It
// stops at the first failing call. Earlier calls are not rolled back, so a
// retry after a partial failure inserts the header again.
func ApplyRemote(ctx context.Context, remote Remote, tx OfflineTransaction) error {
	saleID, err := remote.InsertSale(ctx, tx.Header())
	if err != nil {
		return fmt.Errorf("%w: insert sale %s: %w", ErrRemoteWriteFailed, tx.ID, err)
	}

	for _, item := range tx.Items {
		line := SaleLine{
			SaleID:      saleID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.UnitPrice,
		}
		if err := remote.InsertSaleLine(ctx, line); err != nil {
			return fmt.Errorf("%w: insert sale line %s/%s: %w", ErrRemoteWriteFailed, tx.ID, item.ProductID, err)
		}
		if err := remote.SetProductStock(ctx, item.ProductID, item.ResultingStock); err != nil {
			return fmt.Errorf("%w: update stock %s: %w", ErrRemoteWriteFailed, item.ProductID, err)
		}
	}
	return nil
}

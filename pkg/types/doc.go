// Package types defines the cart entities, the Storage interface, the
// configuration accepted by storage backends and cart stores, and the
// standard error values shared by every GoMarket package.
package types

// Package vault provides symmetric encryption for credential fields before
// they reach persistent storage. It is the leaf dependency of everything
// that touches token material.
package vault

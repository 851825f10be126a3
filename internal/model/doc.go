// Package model defines shared data types used across the pylon client.
//
// Conventions:
//   - IDs: Snowflake (64-bit, time-sortable), decimal strings on the wire
//   - Timestamps: milliseconds since the platform epoch, bits 63..22 of a Snowflake
//   - Partial payloads: pointer fields distinguish "field absent" from "zero value"
package model

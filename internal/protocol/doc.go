// Package protocol translates domain operations into rigctl command tokens
// and classifies the rig's answers into typed results.
//
// The token naming is asymmetric where hamlib is: power is read with
// "l RFPOWER" and written with "P <percent>".
package protocol

// Package forms binds HTML form submissions to the vendor subscription API.
//
// A Page is a parsed HTML document. Discovery finds the opted-in forms,
// Resolver layers their configuration, and Controller arms each form and
// runs the submit pipeline: Map the submitted fields into a vendor attribute
// tree, Validate it, BuildPayload, hand it to the API client, then reflect
// the outcome back into the page and onto the EventBus.
package forms

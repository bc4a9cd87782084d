// Package auth logs a storefront session in.
//
// A Flow combines a Checker, which recognises an authenticated session
// (RedirectCheck for cookie stores, TokenCheck for bearer tokens), with a
// Strategy that submits credentials (FormLogin or TokenLogin):
//
//	flow := &auth.Flow{
//	    Session:     session,
//	    Checker:     auth.RedirectCheck{ShelfURL: shelf, Marker: "login"},
//	    Strategy:    auth.FormLogin{SubmitURL: loginURL, Fields: fields},
//	    Credentials: auth.Credentials{Login: acct.Login, Password: acct.Password},
//	}
//	firstPage, err := flow.Authenticate(ctx)
//
// Failures are *Error values matching errs.ErrAuthentication.
package auth
